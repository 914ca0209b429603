// Package indexer ingests site content into the content store and the native search index.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhtml "html"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/content"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/panjf2000/ants/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"
)

// AttachmentType is the content type given to imported attachment files.
const AttachmentType = "attachment"

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// listPageSize bounds each ListItems page when looking up items by source path.
const listPageSize = 500

// Indexer writes content items to the store and keeps the native index in step.
type Indexer struct {
	store       storage.Storage
	index       keyword.KeywordIndex
	text        *content.Extractor
	attachments *extract.Extractor
	markdown    goldmark.Markdown
	cfg         *config.ImportConfig
	logger      *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, item deleted, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer. index may be nil, in which case only the store is written.
func NewIndexer(store storage.Storage, index keyword.KeywordIndex, cfg *config.ImportConfig, opts ...Option) *Indexer {
	if cfg == nil {
		cfg = &config.ImportConfig{}
	}
	idx := &Indexer{
		store:       store,
		index:       index,
		text:        content.NewExtractor(nil),
		attachments: extract.NewExtractor(),
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		cfg:         cfg,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// IndexItem upserts item into the store and the native index. A missing id is
// generated, a missing type takes the import default and a missing status is publish.
func (idx *Indexer) IndexItem(ctx context.Context, item *models.ContentItem) error {
	if item == nil {
		return errors.New("content item is required")
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Type == "" {
		item.Type = idx.cfg.DefaultType
	}
	if item.Status == "" {
		item.Status = models.StatusPublish
	}
	if err := idx.store.UpsertItem(ctx, item); err != nil {
		return fmt.Errorf("failed to store item: %w", err)
	}
	if err := idx.indexNative(ctx, item); err != nil {
		return err
	}
	idx.logger.Debug("indexer item indexed", zap.String("id", item.ID), zap.String("type", item.Type))
	return nil
}

func (idx *Indexer) indexNative(ctx context.Context, item *models.ContentItem) error {
	if idx.index == nil {
		return nil
	}
	// Bleve's standard analyzer does not split on underscores; file names often use them.
	forIndex := *item
	forIndex.Title = strings.ReplaceAll(item.Title, "_", " ")
	if err := idx.index.Index(ctx, &forIndex, idx.text.Extract(item)); err != nil {
		return fmt.Errorf("failed to index item: %w", err)
	}
	return nil
}

// DeleteItem removes an item from the native index and the store.
func (idx *Indexer) DeleteItem(ctx context.Context, id string) error {
	if idx.index != nil {
		if err := idx.index.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from index: %w", err)
		}
	}
	if err := idx.store.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	idx.logger.Debug("indexer item deleted", zap.String("id", id))
	return nil
}

// DeleteFile removes every item imported from path: the file's own item and
// any items a JSON file contributed under their own ids.
func (idx *Indexer) DeleteFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	ids := []string{fileid.ContentID(absPath)}
	for offset := 0; ; offset += listPageSize {
		items, err := idx.store.ListItems(ctx, offset, listPageSize)
		if err != nil {
			return 0, fmt.Errorf("list items: %w", err)
		}
		for _, it := range items {
			if it.Metadata[metaKeySourcePath] == absPath && it.ID != ids[0] {
				ids = append(ids, it.ID)
			}
		}
		if len(items) < listPageSize {
			break
		}
	}
	deleted := 0
	for _, id := range ids {
		if _, err := idx.store.GetItem(ctx, id); errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err := idx.DeleteItem(ctx, id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// IndexFile imports the file at path and returns the number of items written.
// JSON files hold one item or an array of items; Markdown and HTML files become
// one item of the default type; attachments become one item of type attachment.
// Files already imported with the same mtime and size are skipped.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(idx.cfg.Extensions) > 0 && !extensionAllowed(ext, idx.cfg.Extensions) {
		return 0, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}

	if ext == ".json" {
		return idx.indexJSON(ctx, absPath, info)
	}

	id := fileid.ContentID(absPath)
	if idx.unchanged(ctx, id, absPath, info) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return 0, nil
	}

	var item *models.ContentItem
	switch ext {
	case ".md", ".markdown":
		item, err = idx.markdownItem(absPath)
	case ".html", ".htm":
		item, err = htmlItem(absPath)
	default:
		item, err = idx.attachmentItem(absPath)
	}
	if err != nil {
		return 0, err
	}
	item.ID = id
	item.Metadata = sourceMetadata(absPath, info)
	if err := idx.IndexItem(ctx, item); err != nil {
		return 0, err
	}
	idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("id", id))
	return 1, nil
}

func (idx *Indexer) indexJSON(ctx context.Context, absPath string, info os.FileInfo) (int, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	data = bytes.TrimSpace(data)
	var items []*models.ContentItem
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return 0, fmt.Errorf("parse %s: %w", filepath.Base(absPath), err)
		}
	} else {
		var item models.ContentItem
		if err := json.Unmarshal(data, &item); err != nil {
			return 0, fmt.Errorf("parse %s: %w", filepath.Base(absPath), err)
		}
		items = []*models.ContentItem{&item}
	}

	base := fileid.ContentID(absPath)
	n := 0
	for i, item := range items {
		if item == nil {
			continue
		}
		if item.ID == "" {
			item.ID = base
			if len(items) > 1 {
				item.ID = base + "-" + strconv.Itoa(i)
			}
		}
		meta := sourceMetadata(absPath, info)
		for k, v := range item.Metadata {
			if _, reserved := meta[k]; !reserved {
				meta[k] = v
			}
		}
		item.Metadata = meta
		if err := idx.IndexItem(ctx, item); err != nil {
			return n, fmt.Errorf("item %d: %w", i, err)
		}
		n++
	}
	return n, nil
}

func (idx *Indexer) markdownItem(absPath string) (*models.ContentItem, error) {
	src, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	title, rest := markdownTitle(string(src))
	if title == "" {
		title = titleFromFilename(absPath)
	}
	var buf bytes.Buffer
	if err := idx.markdown.Convert([]byte(rest), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return &models.ContentItem{Title: title, Body: buf.String()}, nil
}

// markdownTitle returns the text of the first level-one ATX heading and the
// source with that heading line removed.
func markdownTitle(src string) (string, string) {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			title := strings.TrimSpace(strings.TrimRight(strings.TrimPrefix(trimmed, "# "), "#"))
			rest := append(append([]string(nil), lines[:i]...), lines[i+1:]...)
			return title, strings.Join(rest, "\n")
		}
	}
	return "", src
}

func (idx *Indexer) attachmentItem(absPath string) (*models.ContentItem, error) {
	text, err := idx.attachments.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	return &models.ContentItem{
		Type:  AttachmentType,
		Title: filepath.Base(absPath),
		Body:  stdhtml.EscapeString(text),
	}, nil
}

func titleFromFilename(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}

func sourceMetadata(absPath string, info os.FileInfo) map[string]string {
	// Stored as strings: UnixNano exceeds what a JSON float64 holds exactly.
	return map[string]string{
		metaKeySourcePath:  absPath,
		metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
		metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
	}
}

// unchanged reports whether id was already imported from absPath with the same mtime and size.
func (idx *Indexer) unchanged(ctx context.Context, id, absPath string, info os.FileInfo) bool {
	item, err := idx.store.GetItem(ctx, id)
	if err != nil || item.Metadata == nil {
		return false
	}
	return item.Metadata[metaKeySourcePath] == absPath &&
		item.Metadata[metaKeySourceMtime] == strconv.FormatInt(info.ModTime().UnixNano(), 10) &&
		item.Metadata[metaKeySourceSize] == strconv.FormatInt(info.Size(), 10)
}

// Progress is called once per file IndexDirectory visits, from worker goroutines.
type Progress func(path string, err error)

// IndexDirectory imports every regular file under dir whose extension is allowed,
// descending into subdirectories when recursive is set. Files are imported
// concurrently on a pool of the configured number of workers. It returns the
// number of items written and the first error encountered, if any.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, recursive bool, progress Progress) (int, error) {
	files, err := idx.ListFiles(dir, recursive)
	if err != nil {
		return 0, err
	}

	workers := idx.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return 0, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		total    atomic.Int64
		errOnce  sync.Once
		firstErr error
	)
	record := func(path string, err error) {
		if err != nil {
			errOnce.Do(func() { firstErr = fmt.Errorf("%s: %w", path, err) })
		}
		if progress != nil {
			progress(path, err)
		}
	}

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			n, err := idx.IndexFile(ctx, path)
			total.Add(int64(n))
			if err != nil {
				idx.logger.Warn("indexer file failed", zap.String("path", path), zap.Error(err))
			}
			record(path, err)
		})
		if submitErr != nil {
			wg.Done()
			record(path, submitErr)
		}
	}
	wg.Wait()

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	return int(total.Load()), firstErr
}

// ListFiles returns the regular files under dir with an allowed extension, in walk order.
func (idx *Indexer) ListFiles(dir string, recursive bool) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var files []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != absDir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !idx.Accepts(path) {
			return nil
		}
		// Resolve symlinks so only regular files are imported.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// Accepts reports whether path has an extension the importer handles.
func (idx *Indexer) Accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".md", ".markdown", ".html", ".htm":
	default:
		if !extract.Supported(ext) {
			return false
		}
	}
	return len(idx.cfg.Extensions) == 0 || extensionAllowed(ext, idx.cfg.Extensions)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
