package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllCategories is the catalogue filter value meaning "no category filter".
const AllCategories = "All Categories"

// Dataset is a file listed for sale by a seller.
type Dataset struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"sellerId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Tags        []string        `json:"tags"`
	Format      string          `json:"format"`
	DataType    string          `json:"dataType"`
	License     string          `json:"license"`
	FileName    string          `json:"fileName"`
	FileSize    int64           `json:"fileSize"`
	FilePath    string          `json:"-"`
	MimeType    string          `json:"mimeType"`
	Downloads   int             `json:"downloads"`
	IsAvailable bool            `json:"isAvailable"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NewDataset is the listing part of an upload. File metadata is filled in
// from the stored blob, never from the client.
type NewDataset struct {
	Title       string          `json:"title" validate:"required,max=300"`
	Description string          `json:"description" validate:"required"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Category    string          `json:"category" validate:"required"`
	Tags        []string        `json:"tags" validate:"dive,required,max=64"`
	Format      string          `json:"format" validate:"required"`
	DataType    string          `json:"dataType" validate:"required"`
	License     string          `json:"license" validate:"required"`
}

// DatasetFile describes a blob that backs a dataset.
type DatasetFile struct {
	FileName string
	FileSize int64
	FilePath string
	MimeType string
}

// DatasetWithSeller is the catalogue view of a dataset.
type DatasetWithSeller struct {
	Dataset
	Seller *UserSummary `json:"seller"`
}
