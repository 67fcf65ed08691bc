package storage

import (
	"encoding/json"
	"errors"

	"robosim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeCandidate(record model.CandidateRecord) ([]byte, error) {
	return json.Marshal(record)
}

func DecodeCandidate(data []byte) (model.CandidateRecord, error) {
	var record model.CandidateRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.CandidateRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.CandidateRecord{}, err
	}
	return record, nil
}

func EncodeRunSummary(summary model.RunSummary) ([]byte, error) {
	return json.Marshal(summary)
}

func DecodeRunSummary(data []byte) (model.RunSummary, error) {
	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.RunSummary{}, err
	}
	return summary, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
