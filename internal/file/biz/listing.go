package biz

import (
	"context"

	"go.uber.org/zap"
)

// ListFiles 列出用户已完成上传的文件。
// 流程：解析参数 → 统计总数 → 取候选 → 并发校验 → 不足时补取 → 排序 → 返回
func (uc *FileUseCase) ListFiles(ctx context.Context, owner Owner, raw RawListParams) (*PagePayload, error) {
	params, err := ParseListParams(raw, uc.opts.MaxPerPage, uc.opts.DefaultPerPage)
	if err != nil {
		return nil, err
	}

	if params.Source == SourceStorage {
		return uc.listFromStorage(ctx, owner, params)
	}
	return uc.listFromMetadata(ctx, owner, params)
}

func (uc *FileUseCase) listFromMetadata(ctx context.Context, owner Owner, params *ListParams) (*PagePayload, error) {
	log := uc.logger.WithContext(ctx)

	// 游标模式不走缓存
	cacheable := params.UseCache && params.Cursor == nil && uc.cache != nil
	if cacheable {
		payload, ok, err := uc.cache.Get(ctx, owner.ID, params.Page, params.PerPage)
		if err != nil {
			log.Warn("list cache read failed", zap.Error(err))
		} else if ok {
			return payload, nil
		}
	}

	total, err := uc.repo.Count(ctx, owner.ID, StatusComplete)
	if err != nil {
		return nil, metadataErr(err)
	}

	query := ListQuery{
		Owner:  owner.ID,
		Status: StatusComplete,
		Limit:  int64(params.PerPage),
	}
	if params.Cursor != nil {
		query.After = params.Cursor.Boundary()
	} else {
		query.Skip = params.Skip()
	}

	candidates, err := uc.repo.List(ctx, query)
	if err != nil {
		return nil, metadataErr(err)
	}

	files, dropped := uc.reconciler.ResolveMany(ctx, candidates, params.UseCache)

	consumed := int64(len(candidates))
	full := len(candidates) == params.PerPage
	var last *FileRecord
	if len(candidates) > 0 {
		last = candidates[len(candidates)-1]
	}

	// 补取轮数有上限，对象存储有大量空洞时页面可能不满
	for round := 0; round < uc.opts.BackfillRounds && dropped > 0 && full && len(files) < params.PerPage; round++ {
		need := params.PerPage - len(files)
		more := ListQuery{
			Owner:  owner.ID,
			Status: StatusComplete,
			Limit:  int64(need),
		}
		if params.Cursor != nil {
			more.After = BoundaryCursor(last).Boundary()
		} else {
			more.Skip = query.Skip + consumed
		}

		extra, err := uc.repo.List(ctx, more)
		if err != nil {
			log.Warn("backfill fetch failed, returning short page", zap.Error(err))
			break
		}

		resolved, d := uc.reconciler.ResolveMany(ctx, extra, params.UseCache)
		files = append(files, resolved...)
		dropped = d
		consumed += int64(len(extra))
		full = len(extra) == need
		if len(extra) > 0 {
			last = extra[len(extra)-1]
		}
		log.Debug("backfill round done",
			zap.Int("round", round+1),
			zap.Int("fetched", len(extra)),
			zap.Int("dropped", d),
		)
	}

	files = dedupeByKey(files)
	SortRecords(files)
	if len(files) > params.PerPage {
		files = files[:params.PerPage]
	}

	payload := &PagePayload{
		Files:      toViews(files),
		Total:      total,
		TotalPages: TotalPages(total, params.PerPage),
		Page:       params.Page,
		PerPage:    params.PerPage,
	}
	// 游标取自元数据库中的排序位置，而不是合并后的 lastModified
	if full && last != nil {
		payload.NextCursor = BoundaryCursor(last).Encode()
	}

	if cacheable {
		if err := uc.cache.Set(ctx, owner.ID, params.Page, params.PerPage, payload); err != nil {
			log.Warn("list cache write failed", zap.Error(err))
		}
	}
	return payload, nil
}

// listFromStorage 以对象存储 LIST 为主，按原生 continuation token 翻页。
// 排序只在当前页内进行。
func (uc *FileUseCase) listFromStorage(ctx context.Context, owner Owner, params *ListParams) (*PagePayload, error) {
	total, err := uc.repo.Count(ctx, owner.ID, StatusComplete)
	if err != nil {
		return nil, metadataErr(err)
	}

	payload := &PagePayload{
		Files:      []FileView{},
		Total:      total,
		TotalPages: TotalPages(total, params.PerPage),
		Page:       params.Page,
		PerPage:    params.PerPage,
	}

	token := ""
	if params.Cursor != nil {
		token = params.Cursor.Token
	} else {
		// offset 模式下逐页前进到目标页
		for i := 1; i < params.Page; i++ {
			page, err := uc.store.List(ctx, owner.Prefix(), token, params.PerPage)
			if err != nil {
				return nil, storageErr(err)
			}
			if page.NextToken == "" {
				return payload, nil
			}
			token = page.NextToken
		}
	}

	page, err := uc.store.List(ctx, owner.Prefix(), token, params.PerPage)
	if err != nil {
		return nil, storageErr(err)
	}

	keys := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		keys = append(keys, item.Key)
	}
	records, err := uc.repo.FindByKeys(ctx, owner.ID, keys)
	if err != nil {
		return nil, metadataErr(err)
	}

	now := uc.now()
	files := make([]*FileRecord, 0, len(page.Items))
	for i := range page.Items {
		item := &page.Items[i]
		rec, ok := records[item.Key]
		switch {
		case !ok:
			files = append(files, uc.reconciler.SynthesizeOrphan(ctx, owner, item))
		case rec.UploadStatus != StatusComplete:
			continue
		default:
			files = append(files, Merge(rec, item, now))
		}
	}

	SortRecords(files)
	payload.Files = toViews(files)
	if page.NextToken != "" {
		payload.NextCursor = StoreCursor(page.NextToken).Encode()
	}
	return payload, nil
}

func toViews(recs []*FileRecord) []FileView {
	views := make([]FileView, 0, len(recs))
	for _, r := range recs {
		views = append(views, NewFileView(r))
	}
	return views
}
