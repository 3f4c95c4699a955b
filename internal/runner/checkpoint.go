package runner

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fusion-core/engine/internal/fusionerr"
	"github.com/fusion-core/engine/internal/models"
)

// CheckpointPath returns the on-disk location of a task's checkpoint file,
// per spec §6: "./checkpoints/<task_id>.ckpt".
func CheckpointPath(dir, taskID string) string {
	if dir == "" {
		dir = "checkpoints"
	}
	return filepath.Join(dir, taskID+".ckpt")
}

// WriteCheckpoint persists rec atomically via write-temp-then-rename, so a
// crash mid-write never leaves a corrupt checkpoint behind.
func WriteCheckpoint(path string, rec models.CheckpointRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "create checkpoint directory", err).WithPath(path)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "encode checkpoint", err).WithPath(path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "write checkpoint temp file", err).WithPath(path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "rename checkpoint into place", err).WithPath(path)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint file, returning ok=false if it doesn't
// exist (a fresh task, not an error).
func LoadCheckpoint(path string) (rec models.CheckpointRecord, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.CheckpointRecord{}, false, nil
		}
		return models.CheckpointRecord{}, false, fusionerr.Wrap(fusionerr.CodeCheckpointMismatch, "read checkpoint", err).WithPath(path)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.CheckpointRecord{}, false, fusionerr.Wrap(fusionerr.CodeCheckpointMismatch, "decode checkpoint", err).WithPath(path)
	}
	return rec, true, nil
}

// DeleteCheckpoint removes a checkpoint file, tolerating it already being
// absent.
func DeleteCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "delete checkpoint", err).WithPath(path)
	}
	return nil
}

// ResolveResumePoint decides the frame sequence id a video task should
// start from: the checkpoint's next frame if resume is enabled and the
// fingerprint matches, otherwise 0 (and, per spec §8's resumability
// property, a fingerprint mismatch forces a restart even if resume was
// requested).
func ResolveResumePoint(dir string, cfg *models.TaskConfig) (startSeq int64, fromCheckpoint bool, err error) {
	if !cfg.TaskInfo.EnableResume {
		return 0, false, nil
	}

	path := CheckpointPath(dir, cfg.TaskInfo.ID)
	rec, ok, err := LoadCheckpoint(path)
	if err != nil || !ok {
		return 0, false, err
	}

	if rec.ConfigFingerprint != ConfigFingerprint(cfg) {
		return 0, false, nil
	}

	return rec.LastCompletedSeqID + 1, true, nil
}
