// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package redisstore implements auth.SessionStore on Redis.
//
// Each session is a hash that Redis evicts at the session's expiry. A set
// per subject indexes its sessions and a sorted set scored by expiry lets
// PurgeExpired clean both indexes. Multi-key updates run as Lua scripts so
// they are atomic.
package redisstore

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// DefaultKeyPrefix namespaces all keys.
const DefaultKeyPrefix = "warden"

const purgeBatch = 500

// Hash fields.
const (
	fieldSubject  = "sub"
	fieldIssued   = "iat"
	fieldExpires  = "exp"
	fieldActivity = "act"
	fieldRevoked  = "rev"
	fieldDevice   = "dev"
	fieldSource   = "src"

	notRevoked = "0"
)

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'sub', ARGV[2], 'iat', ARGV[3], 'exp', ARGV[4], 'act', ARGV[5],
  'rev', '0', 'dev', ARGV[6], 'src', ARGV[7])
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[8])
return 1
`)

var touchScript = redis.NewScript(`
local act = redis.call('HGET', KEYS[1], 'act')
if not act or redis.call('HGET', KEYS[1], 'rev') ~= '0' then
  return 0
end
if tonumber(ARGV[1]) > tonumber(act) then
  redis.call('HSET', KEYS[1], 'act', ARGV[1])
end
return 1
`)

var revokeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'rev') == '0' then
  redis.call('HSET', KEYS[1], 'rev', ARGV[1])
  return 1
end
return 0
`)

var revokeAllScript = redis.NewScript(`
local n = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  if id ~= ARGV[1] then
    local key = ARGV[3] .. id
    if redis.call('HGET', key, 'rev') == '0' then
      redis.call('HSET', key, 'rev', ARGV[2])
      n = n + 1
    end
  end
end
return n
`)

var purgeScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1], 'LIMIT', 0, tonumber(ARGV[5]))
for _, m in ipairs(members) do
  local sep = string.find(m, ':', 1, true)
  local id = string.sub(m, 1, sep - 1)
  local sub = string.sub(m, sep + 1)
  redis.call('DEL', ARGV[2] .. id)
  redis.call('SREM', ARGV[3] .. sub .. ARGV[4], id)
  redis.call('ZREM', KEYS[1], m)
end
return #members
`)

// Options configures a Store.
type Options struct {
	KeyPrefix string
}

// Store implements auth.SessionStore.
type Store struct {
	client redis.UniversalClient
	keys   keyspace
}

// New creates a Store on client.
func New(client redis.UniversalClient, opts Options) *Store {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, keys: keyspace{prefix: prefix}}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return oops.Code("REDIS_UNAVAILABLE").With("operation", "ping").Wrap(err)
	}
	return nil
}

// Create stores a session that Redis evicts at its expiry.
func (s *Store) Create(ctx context.Context, session *auth.Session) error {
	created, err := createScript.Run(ctx, s.client,
		[]string{s.keys.session(session.ID), s.keys.subject(session.SubjectID), s.keys.expiry()},
		session.ID,
		session.SubjectID,
		millis(session.IssuedAt),
		millis(session.ExpiresAt),
		millis(session.LastActivityAt),
		session.DeviceInfo,
		session.SourceAddress,
		expiryMember(session.ID, session.SubjectID),
	).Int64()
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "create session").
			With("subject_id", session.SubjectID).
			Wrap(err)
	}
	if created == 0 {
		return oops.Code(auth.CodeSessionConflict).
			With("subject_id", session.SubjectID).
			Wrap(auth.ErrSessionConflict)
	}
	return nil
}

// FindActive returns the session if it is unrevoked and unexpired at now.
func (s *Store) FindActive(ctx context.Context, sessionID string, now time.Time) (*auth.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.keys.session(sessionID)).Result()
	if err != nil {
		return nil, oops.Code("SESSION_FIND_FAILED").
			With("operation", "find active session").
			Wrap(err)
	}
	session, err := decodeSession(sessionID, fields)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.IsActiveAt(now) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return session, nil
}

// TouchActivity moves the activity time forward on an unrevoked session.
func (s *Store) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	touched, err := touchScript.Run(ctx, s.client, []string{s.keys.session(sessionID)}, millis(at)).Int64()
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "touch session").
			Wrap(err)
	}
	if touched == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// Revoke marks the session revoked once; later calls keep the first time.
func (s *Store) Revoke(ctx context.Context, sessionID string, at time.Time) error {
	if err := revokeScript.Run(ctx, s.client, []string{s.keys.session(sessionID)}, millis(at)).Err(); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			Wrap(err)
	}
	return nil
}

// RevokeAllForSubject revokes the subject's sessions other than
// exceptSessionID atomically.
func (s *Store) RevokeAllForSubject(ctx context.Context, subjectID, exceptSessionID string, at time.Time) (int64, error) {
	n, err := revokeAllScript.Run(ctx, s.client,
		[]string{s.keys.subject(subjectID)},
		exceptSessionID, millis(at), s.keys.sessionPrefix(),
	).Int64()
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("operation", "revoke subject sessions").
			With("subject_id", subjectID).
			Wrap(err)
	}
	return n, nil
}

// ListActiveForSubject returns the subject's active sessions, newest first.
// Index entries whose session Redis already evicted are dropped.
func (s *Store) ListActiveForSubject(ctx context.Context, subjectID string, now time.Time) ([]*auth.Session, error) {
	subjectKey := s.keys.subject(subjectID)
	ids, err := s.client.SMembers(ctx, subjectKey).Result()
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list subject sessions").
			With("subject_id", subjectID).
			Wrap(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.keys.session(id))
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "load subject sessions").
			With("subject_id", subjectID).
			Wrap(err)
	}

	var (
		active []*auth.Session
		stale  []any
	)
	for i, cmd := range cmds {
		session, err := decodeSession(ids[i], cmd.Val())
		if err != nil {
			return nil, err
		}
		if session == nil {
			stale = append(stale, ids[i])
			continue
		}
		if session.IsActiveAt(now) {
			active = append(active, session)
		}
	}
	if len(stale) > 0 {
		// Evicted sessions leave their IDs in the subject index.
		_ = s.client.SRem(ctx, subjectKey, stale...).Err() //nolint:errcheck // best-effort index repair
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].IssuedAt.Equal(active[j].IssuedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].IssuedAt.After(active[j].IssuedAt)
	})
	return active, nil
}

// PurgeExpired removes sessions that expired before olderThan from every
// index, in batches.
func (s *Store) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64
	for {
		n, err := purgeScript.Run(ctx, s.client,
			[]string{s.keys.expiry()},
			millis(olderThan), s.keys.sessionPrefix(), s.keys.subjectPrefix(), subjectSuffix, purgeBatch,
		).Int64()
		if err != nil {
			return total, oops.Code("SESSION_PURGE_FAILED").
				With("operation", "purge expired sessions").
				With("purged", total).
				Wrap(err)
		}
		total += n
		if n < purgeBatch {
			return total, nil
		}
	}
}

// decodeSession builds a session from its hash. An empty hash means the
// session does not exist and yields (nil, nil).
func decodeSession(id string, fields map[string]string) (*auth.Session, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	var ms [4]int64
	for i, name := range []string{fieldIssued, fieldExpires, fieldActivity, fieldRevoked} {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return nil, oops.Code("SESSION_CORRUPT").
				With("session_id", id).
				With("field", name).
				Wrap(err)
		}
		ms[i] = v
	}

	session := &auth.Session{
		ID:             id,
		SubjectID:      fields[fieldSubject],
		IssuedAt:       fromMillis(ms[0]),
		ExpiresAt:      fromMillis(ms[1]),
		LastActivityAt: fromMillis(ms[2]),
		DeviceInfo:     fields[fieldDevice],
		SourceAddress:  fields[fieldSource],
	}
	if fields[fieldRevoked] != notRevoked {
		revokedAt := fromMillis(ms[3])
		session.RevokedAt = &revokedAt
	}
	return session, nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// expiryMember encodes id and subject for the expiry index. Session IDs
// are base64url and never contain ':'.
func expiryMember(sessionID, subjectID string) string {
	return sessionID + ":" + subjectID
}

const subjectSuffix = ":sessions"

type keyspace struct {
	prefix string
}

func (k keyspace) sessionPrefix() string { return k.prefix + ":session:" }
func (k keyspace) subjectPrefix() string { return k.prefix + ":subject:" }
func (k keyspace) session(id string) string { return k.sessionPrefix() + id }
func (k keyspace) subject(id string) string { return k.subjectPrefix() + id + subjectSuffix }
func (k keyspace) expiry() string { return k.prefix + ":sessions:expiry" }

var _ auth.SessionStore = (*Store)(nil)
