package db

import "time"

type (
	FileRecord struct {
		ID         uint   `gorm:"primarykey"`
		Path       string `gorm:"uniqueIndex"`
		MajorBrand string
		Timescale  uint32
		Duration   uint64
		MdatOffset uint64
		MdatSize   uint64
		Fragments  int
		CreatedAt  time.Time
		Tracks     []TrackRecord `gorm:"constraint:OnDelete:CASCADE"`
	}
	TrackRecord struct {
		ID           uint   `gorm:"primarykey"`
		FileRecordID uint   `gorm:"index:idx_file_track,unique"`
		TrackID      uint32 `gorm:"index:idx_file_track,unique"`
		Handler      string
		Codec        string
		Timescale    uint32
		Duration     uint64
		SampleCount  int
		Samples      []SampleRecord `gorm:"constraint:OnDelete:CASCADE"`
	}
	// SampleRecord is one resolved sample; Number is its 1-based id.
	SampleRecord struct {
		ID              uint `gorm:"primarykey"`
		TrackRecordID   uint `gorm:"index"`
		Number          uint32
		Offset          uint64
		Size            uint32
		Duration        uint32
		StartTime       uint64
		RenderingOffset int32
		IsSync          bool
	}
)
