package db

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"m7s.live/isobmff/pkg/config"
	"m7s.live/isobmff/pkg/mp4"
)

const batchSize = 500

var ErrNotIndexed = errors.New("not indexed")

// Store keeps resolved sample tables so they can be served without
// parsing the file again.
type Store struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

func Open(conf config.DB) (*Store, error) {
	factory, ok := Factory[conf.DBType]
	if !ok {
		return nil, fmt.Errorf("db type not found %s", conf.DBType)
	}
	db, err := gorm.Open(factory(conf.DSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database %s: %w", conf.DSN, err)
	}
	if err = db.AutoMigrate(&FileRecord{}, &TrackRecord{}, &SampleRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Store{DB: db, Logger: slog.Default()}, nil
}

func (s *Store) Close() error {
	db, err := s.DB.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// Save replaces whatever is stored for path with the tracks of file.
func (s *Store) Save(path string, file *mp4.File) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := deleteFile(tx, path); err != nil {
			return err
		}
		rec := FileRecord{
			Path:       path,
			MdatOffset: file.MdatOffset,
			MdatSize:   file.MdatSize,
			Fragments:  len(file.Fragments),
		}
		if file.Ftyp != nil {
			rec.MajorBrand = file.Ftyp.MajorBrand.String()
		}
		if file.Moov != nil {
			rec.Timescale, rec.Duration = file.Moov.Mvhd.Timescale, file.Moov.Mvhd.Duration
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		for _, id := range file.TrackIDs() {
			track := file.Tracks[id]
			tr := TrackRecord{
				FileRecordID: rec.ID,
				TrackID:      id,
				Handler:      track.Handler.String(),
				Timescale:    track.Timescale,
				Duration:     track.Duration,
				SampleCount:  track.SampleCount(),
			}
			if track.Codec != nil {
				tr.Codec = track.Codec.Codec
			}
			if err := tx.Create(&tr).Error; err != nil {
				return err
			}
			samples := make([]SampleRecord, len(track.Samples))
			for i, sample := range track.Samples {
				samples[i] = SampleRecord{
					TrackRecordID:   tr.ID,
					Number:          uint32(i + 1),
					Offset:          sample.Offset,
					Size:            sample.Size,
					Duration:        sample.Duration,
					StartTime:       sample.StartTime,
					RenderingOffset: sample.RenderingOffset,
					IsSync:          sample.IsSync,
				}
			}
			if len(samples) > 0 {
				if err := tx.CreateInBatches(samples, batchSize).Error; err != nil {
					return err
				}
			}
		}
		s.Logger.Debug("indexed", "path", path, "tracks", len(file.Tracks))
		return nil
	})
}

func deleteFile(tx *gorm.DB, path string) error {
	var rec FileRecord
	err := tx.Where("path = ?", path).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	var trackIDs []uint
	if err = tx.Model(&TrackRecord{}).Where("file_record_id = ?", rec.ID).Pluck("id", &trackIDs).Error; err != nil {
		return err
	}
	if len(trackIDs) > 0 {
		if err = tx.Where("track_record_id IN ?", trackIDs).Delete(&SampleRecord{}).Error; err != nil {
			return err
		}
	}
	if err = tx.Where("file_record_id = ?", rec.ID).Delete(&TrackRecord{}).Error; err != nil {
		return err
	}
	return tx.Delete(&rec).Error
}

// Tracks lists the tracks stored for path.
func (s *Store) Tracks(path string) ([]TrackRecord, error) {
	var rec FileRecord
	if err := s.DB.Preload("Tracks").Where("path = ?", path).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotIndexed, path)
		}
		return nil, err
	}
	return rec.Tracks, nil
}

// LoadSamples returns the samples of one track in id order.
func (s *Store) LoadSamples(path string, trackID uint32) ([]mp4.Sample, error) {
	var tr TrackRecord
	err := s.DB.Joins("JOIN file_records ON file_records.id = track_records.file_record_id").
		Where("file_records.path = ? AND track_records.track_id = ?", path, trackID).
		First(&tr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s track %d", ErrNotIndexed, path, trackID)
	} else if err != nil {
		return nil, err
	}
	var records []SampleRecord
	if err = s.DB.Where("track_record_id = ?", tr.ID).Order("number").Find(&records).Error; err != nil {
		return nil, err
	}
	samples := make([]mp4.Sample, len(records))
	for i, r := range records {
		samples[i] = mp4.Sample{
			Offset:          r.Offset,
			Size:            r.Size,
			Duration:        r.Duration,
			StartTime:       r.StartTime,
			RenderingOffset: r.RenderingOffset,
			IsSync:          r.IsSync,
		}
	}
	return samples, nil
}
