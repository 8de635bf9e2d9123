package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shopbot/internal/apperr"
	"shopbot/internal/config"
	"shopbot/internal/logger"
	"shopbot/internal/model"
	"shopbot/internal/validator"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Document - формат внешнего каталога (JSON или YAML).
type Document struct {
	Categories []CategoryDoc `json:"categories" yaml:"categories" validate:"dive"`
}

type CategoryDoc struct {
	Slug  string    `json:"slug" yaml:"slug" validate:"nonblank"`
	Title string    `json:"title" yaml:"title" validate:"nonblank"`
	Items []ItemDoc `json:"items" yaml:"items" validate:"dive"`
}

type ItemDoc struct {
	SKU       string  `json:"sku" yaml:"sku" validate:"nonblank"`
	Title     string  `json:"title" yaml:"title"`
	PriceRub  float64 `json:"price_rub" yaml:"price_rub" validate:"gte=0"`
	Available *bool   `json:"available" yaml:"available"`
}

// PriceMinor переводит рубли в копейки с округлением.
func (i ItemDoc) PriceMinor() int64 {
	return int64(math.Round(i.PriceRub * 100))
}

// SyncStore - запись каталога в хранилище.
type SyncStore interface {
	UpsertCategory(ctx context.Context, slug, title string) (int64, error)
	UpsertProductBySKU(ctx context.Context, p model.Product) (int64, error)
	GetSetting(ctx context.Context, key string) (string, error)
}

// Reloader перестраивает кэш после синхронизации.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Result - итог синхронизации.
type Result struct {
	Source     string
	Categories int
	Products   int
}

type Loader struct {
	store    SyncStore
	reloader Reloader
	url      string
	file     string
	client   *http.Client
}

func NewLoader(store SyncStore, reloader Reloader, cfg config.CatalogConfig) *Loader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Loader{
		store:    store,
		reloader: reloader,
		url:      cfg.URL,
		file:     cfg.File,
		client:   &http.Client{Timeout: timeout},
	}
}

// Load читает каталог из URL (настройка catalog_url, затем CATALOG_URL),
// иначе из локального файла, сохраняет его и перезагружает кэш.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	source, err := l.source(ctx)
	if err != nil {
		return Result{}, err
	}

	var doc *Document
	if isURL(source) {
		doc, err = l.fetch(ctx, source)
	} else {
		doc, err = readFile(source)
	}
	if err != nil {
		return Result{}, err
	}

	return l.Import(ctx, source, doc)
}

// Import сохраняет уже разобранный документ и перезагружает кэш.
func (l *Loader) Import(ctx context.Context, source string, doc *Document) (Result, error) {
	if err := validator.ValidateStruct(doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	res, err := l.apply(ctx, doc)
	if err != nil {
		return Result{}, err
	}
	res.Source = source

	if err := l.reloader.Reload(ctx); err != nil {
		return res, err
	}

	logger.L.Info("Каталог синхронизирован",
		zap.String("source", source),
		zap.Int("categories", res.Categories),
		zap.Int("products", res.Products))
	return res, nil
}

func (l *Loader) source(ctx context.Context) (string, error) {
	url, err := l.store.GetSetting(ctx, model.SettingCatalogURL)
	switch {
	case err == nil && strings.TrimSpace(url) != "":
		return strings.TrimSpace(url), nil
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return "", err
	}
	if l.url != "" {
		return l.url, nil
	}
	return l.file, nil
}

func (l *Loader) fetch(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: некорректный URL каталога: %v", apperr.ErrValidation, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки каталога: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("источник каталога ответил статусом %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога: %w", err)
	}

	yamlBody := strings.Contains(resp.Header.Get("Content-Type"), "yaml") || hasYAMLExt(req.URL.Path)
	return Parse(body, yamlBody)
}

func readFile(path string) (*Document, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла каталога: %w", err)
	}
	return Parse(body, hasYAMLExt(path))
}

// Parse разбирает и проверяет документ каталога.
func Parse(body []byte, isYAML bool) (*Document, error) {
	var doc Document
	var err error
	if isYAML {
		err = yaml.Unmarshal(body, &doc)
	} else {
		err = json.Unmarshal(body, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: некорректный документ каталога: %v", apperr.ErrValidation, err)
	}
	if err := validator.ValidateStruct(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return &doc, nil
}

func (l *Loader) apply(ctx context.Context, doc *Document) (Result, error) {
	var res Result
	for _, cat := range doc.Categories {
		catID, err := l.store.UpsertCategory(ctx, cat.Slug, cat.Title)
		if err != nil {
			return res, err
		}
		res.Categories++

		for _, item := range cat.Items {
			title := item.Title
			if title == "" {
				title = item.SKU
			}
			available := item.Available == nil || *item.Available
			p := model.Product{
				CategoryID: catID,
				SKU:        item.SKU,
				Title:      title,
				PriceMinor: item.PriceMinor(),
				Available:  available,
			}
			if _, err := l.store.UpsertProductBySKU(ctx, p); err != nil {
				return res, err
			}
			res.Products++
		}
	}
	return res, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func hasYAMLExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
