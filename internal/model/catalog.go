package model

const (
	GeneralCategorySlug  = "general"
	GeneralCategoryTitle = "Общее"
)

// Ключи таблицы settings.
const (
	SettingCourierFee = "courier_fee_minor"
	SettingCatalogURL = "catalog_url"
)

type Category struct {
	ID    int64  `json:"id" db:"id"`
	Slug  string `json:"slug" db:"slug"`
	Title string `json:"title" db:"title"`
}

// Product - товар каталога. Цена хранится в копейках.
type Product struct {
	ID          int64  `json:"id" db:"id"`
	CategoryID  int64  `json:"category_id" db:"category_id"`
	SKU         string `json:"sku" db:"sku"`
	Title       string `json:"title" db:"title"`
	PriceMinor  int64  `json:"price_minor" db:"price_minor"`
	Available   bool   `json:"available" db:"available"`
	PhotoFileID string `json:"photo_file_id,omitempty" db:"photo_file_id"`
	SortOrder   int    `json:"sort_order" db:"sort_order"`
}

func (p Product) HasPhoto() bool {
	return p.PhotoFileID != ""
}
