// Package conflict applies the configured presides policy to files that differ locally and remotely.
package conflict

import (
	"context"

	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/remote"
	"github.com/dl-alexandre/gosync/internal/types"
)

// Outcome records which side won
type Outcome int

const (
	OutcomeInSync Outcome = iota
	OutcomeServerWins
	OutcomeLocalWins
)

func (o Outcome) String() string {
	switch o {
	case OutcomeServerWins:
		return "server"
	case OutcomeLocalWins:
		return "local"
	default:
		return "in-sync"
	}
}

type Resolver struct {
	remote remote.Service
	policy config.ConflictPolicy
	logger logging.Logger
}

func NewResolver(svc remote.Service, policy config.ConflictPolicy, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if policy == "" {
		policy = config.ServerPresides
	}
	return &Resolver{remote: svc, policy: policy, logger: logger}
}

// Policy returns the active policy
func (r *Resolver) Policy() config.ConflictPolicy {
	return r.policy
}

// Resolve reconciles entry with the local file at localPath whose content hash is localHash.
// baseHash is the hash last cached for the file; when only one side moved away from it
// that side wins and the policy is not consulted. An empty baseHash means no common
// ancestor is known.
// It returns the metadata of the winning version, which callers store in the tree cache.
func (r *Resolver) Resolve(ctx context.Context, entry *types.DriveFile, localPath, localHash, baseHash string) (*types.DriveFile, Outcome, error) {
	if localHash == entry.MD5Checksum {
		return entry, OutcomeInSync, nil
	}

	switch {
	case baseHash != "" && localHash == baseHash:
		return r.pull(ctx, entry, localPath, false)
	case baseHash != "" && entry.MD5Checksum == baseHash:
		return r.push(ctx, entry, localPath, false)
	case r.policy == config.LocalPresides:
		return r.push(ctx, entry, localPath, true)
	default:
		return r.pull(ctx, entry, localPath, true)
	}
}

func (r *Resolver) pull(ctx context.Context, entry *types.DriveFile, localPath string, conflicted bool) (*types.DriveFile, Outcome, error) {
	if err := r.remote.Download(ctx, entry, localPath); err != nil {
		return nil, OutcomeServerWins, err
	}
	if conflicted {
		r.logResolution(entry, localPath, OutcomeServerWins)
	}
	return entry, OutcomeServerWins, nil
}

func (r *Resolver) push(ctx context.Context, entry *types.DriveFile, localPath string, conflicted bool) (*types.DriveFile, Outcome, error) {
	updated, err := r.remote.UpdateContent(ctx, entry.ID, localPath)
	if err != nil {
		return nil, OutcomeLocalWins, err
	}
	if conflicted {
		r.logResolution(entry, localPath, OutcomeLocalWins)
	}
	return updated, OutcomeLocalWins, nil
}

func (r *Resolver) logResolution(entry *types.DriveFile, localPath string, outcome Outcome) {
	r.logger.Info("Conflict resolved",
		logging.F("path", localPath),
		logging.F("fileId", entry.ID),
		logging.F("policy", string(r.policy)),
		logging.F("winner", outcome.String()),
	)
}
