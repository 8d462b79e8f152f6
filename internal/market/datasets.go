package market

import (
	"context"
	"errors"
	"io"
	"strings"

	"golang.org/x/xerrors"

	"datanest-backend/internal/blob"
	"datanest-backend/internal/metrics"
	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

// UploadField is the form field name dataset files arrive under; it also
// prefixes stored blob keys.
const UploadField = "dataset"

// Upload is an incoming dataset file.
type Upload struct {
	FileName string
	MimeType string
	Body     io.Reader
}

// Download is an authorized dataset stream. The caller closes Body.
type Download struct {
	Body     io.ReadCloser
	FileName string
	MimeType string
	Size     int64
}

// CreateDataset stores the file, then lists it for the seller. A rejected
// listing never leaves its file behind.
func (s *Service) CreateDataset(ctx context.Context, seller model.User, nd model.NewDataset, up Upload) (model.Dataset, error) {
	if !s.gate.CanSell(seller) {
		return model.Dataset{}, forbidden("only sellers can upload datasets")
	}
	if up.Body == nil {
		return model.Dataset{}, validation("dataset file is required", nil)
	}

	obj, err := s.blobs.Put(ctx, UploadField, up.FileName, up.Body)
	if errors.Is(err, blob.ErrTooLarge) {
		return model.Dataset{}, validation("dataset file too large", err)
	}
	if err != nil {
		return model.Dataset{}, xerrors.Errorf("storing upload: %w", err)
	}

	discard := func() {
		if err := s.blobs.Remove(context.WithoutCancel(ctx), obj.Key); err != nil {
			log.Warnw("removing rejected upload", "key", obj.Key, "error", err)
		}
	}

	mime := strings.TrimSpace(strings.ToLower(up.MimeType))
	if !s.mimeTypes[mime] {
		discard()
		return model.Dataset{}, validation("unsupported file type "+up.MimeType, nil)
	}
	if err := s.check(nd); err != nil {
		discard()
		return model.Dataset{}, err
	}

	var created model.Dataset
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		created, err = tx.CreateDataset(ctx, model.Dataset{
			SellerID:    seller.ID,
			Title:       strings.TrimSpace(nd.Title),
			Description: nd.Description,
			Price:       nd.Price,
			Category:    nd.Category,
			Tags:        nd.Tags,
			Format:      nd.Format,
			DataType:    nd.DataType,
			License:     nd.License,
			FileName:    up.FileName,
			FileSize:    obj.Size,
			FilePath:    obj.Key,
			MimeType:    mime,
		})
		if err != nil {
			return err
		}
		_, err = tx.IncrementUserDatasets(ctx, seller.ID)
		return err
	})
	if err != nil {
		discard()
		return model.Dataset{}, lookup("seller", err)
	}

	metrics.Market.DatasetsCreated.Inc()
	log.Infow("dataset listed", "dataset", created.ID, "seller", seller.ID, "size", created.FileSize)
	s.publish(ctx, model.MarketEvent{
		Type:      model.EventDatasetCreated,
		ActorID:   seller.ID,
		SellerID:  seller.ID,
		DatasetID: created.ID,
		Amount:    created.Price,
	})
	return created, nil
}

// ListDatasets is the public catalogue: available datasets only.
func (s *Service) ListDatasets(ctx context.Context, f store.DatasetFilter) ([]model.DatasetWithSeller, error) {
	ds, err := s.store.ListDatasets(ctx, f)
	if err != nil {
		return nil, xerrors.Errorf("listing datasets: %w", err)
	}
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.SellerID
	}
	sellers, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make([]model.DatasetWithSeller, len(ds))
	for i, d := range ds {
		out[i] = model.DatasetWithSeller{Dataset: d, Seller: sellers[d.SellerID]}
	}
	return out, nil
}

func (s *Service) GetDataset(ctx context.Context, id string) (model.DatasetWithSeller, error) {
	d, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return model.DatasetWithSeller{}, lookup("dataset", err)
	}
	sellers, err := s.summaries(ctx, d.SellerID)
	if err != nil {
		return model.DatasetWithSeller{}, err
	}
	return model.DatasetWithSeller{Dataset: d, Seller: sellers[d.SellerID]}, nil
}

// ListSellerDatasets includes unavailable datasets.
func (s *Service) ListSellerDatasets(ctx context.Context, seller model.User) ([]model.Dataset, error) {
	ds, err := s.store.ListDatasetsBySeller(ctx, seller.ID)
	if err != nil {
		return nil, xerrors.Errorf("listing seller datasets: %w", err)
	}
	return ds, nil
}

// DownloadDataset counts the download and opens the file. The count is
// taken before streaming starts, so an aborted transfer still counts.
func (s *Service) DownloadDataset(ctx context.Context, user model.User, id string) (Download, error) {
	d, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return Download{}, lookup("dataset", err)
	}
	ok, err := s.gate.CanDownload(ctx, user, d)
	if err != nil {
		return Download{}, xerrors.Errorf("checking download access: %w", err)
	}
	if !ok {
		return Download{}, forbidden("purchase required to download this dataset")
	}

	exists, err := s.blobs.Exists(ctx, d.FilePath)
	if err != nil {
		return Download{}, xerrors.Errorf("checking dataset file: %w", err)
	}
	if !exists {
		log.Errorw("dataset file missing", "dataset", d.ID, "key", d.FilePath)
		return Download{}, notFound("file missing")
	}

	if _, err := s.store.IncrementDownloads(ctx, d.ID); err != nil {
		return Download{}, lookup("dataset", err)
	}
	body, err := s.blobs.Open(ctx, d.FilePath)
	if errors.Is(err, blob.ErrNotFound) {
		return Download{}, notFound("file missing")
	}
	if err != nil {
		return Download{}, xerrors.Errorf("opening dataset file: %w", err)
	}

	metrics.Market.Downloads.Inc()
	s.publish(ctx, model.MarketEvent{
		Type:      model.EventDatasetDownloaded,
		ActorID:   user.ID,
		SellerID:  d.SellerID,
		DatasetID: d.ID,
	})
	return Download{Body: body, FileName: d.FileName, MimeType: d.MimeType, Size: d.FileSize}, nil
}

func (s *Service) ownDataset(ctx context.Context, user model.User, id string) (model.Dataset, error) {
	d, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return model.Dataset{}, lookup("dataset", err)
	}
	if user.ID == "" || d.SellerID != user.ID {
		return model.Dataset{}, forbidden("only the seller can change this dataset")
	}
	return d, nil
}

// SetDatasetAvailability lists or unlists a dataset. Unlisted datasets stay
// downloadable for their purchasers.
func (s *Service) SetDatasetAvailability(ctx context.Context, user model.User, id string, available bool) (model.Dataset, error) {
	if _, err := s.ownDataset(ctx, user, id); err != nil {
		return model.Dataset{}, err
	}
	d, err := s.store.SetDatasetAvailability(ctx, id, available)
	if err != nil {
		return model.Dataset{}, lookup("dataset", err)
	}
	return d, nil
}

// DeleteDataset removes a dataset and its file. Datasets that have been
// bought, or have a payment in flight, can only be unlisted.
func (s *Service) DeleteDataset(ctx context.Context, user model.User, id string) error {
	d, err := s.ownDataset(ctx, user, id)
	if err != nil {
		return err
	}

	err = s.store.Update(ctx, func(tx store.Tx) error {
		ps, err := tx.ListPurchasesByDataset(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range ps {
			if p.Status != model.PurchaseFailed {
				return conflict("dataset has purchases; mark it unavailable instead")
			}
		}
		removed, err := tx.DeleteDataset(ctx, id)
		if err != nil {
			return err
		}
		if !removed {
			return notFound("dataset not found")
		}
		return nil
	})
	if err != nil {
		return lifecycleErr("deleting dataset", err)
	}

	if err := s.blobs.Remove(ctx, d.FilePath); err != nil {
		log.Warnw("removing dataset file", "dataset", id, "key", d.FilePath, "error", err)
	}
	log.Infow("dataset deleted", "dataset", id, "seller", user.ID)
	return nil
}
