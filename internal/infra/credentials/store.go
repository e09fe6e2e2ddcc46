// Package credentials persists vendor API keys in the database so they can
// be rotated without redeploying the API or the worker. Environment
// variables, when set, take precedence over stored keys.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"photorevive/internal/infra"
	"photorevive/internal/sqlinline"
)

const (
	VendorDashScope = "dashscope"
	Vendor302AI     = "302ai"
)

func KnownVendor(vendor string) bool {
	switch vendor {
	case VendorDashScope, Vendor302AI:
		return true
	}
	return false
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) DashScopeAPIKey(ctx context.Context) (string, error) {
	return s.APIKey(ctx, VendorDashScope)
}

func (s *Store) A302APIKey(ctx context.Context) (string, error) {
	return s.APIKey(ctx, Vendor302AI)
}

// APIKey returns the stored key for a vendor, or "" when none is stored.
func (s *Store) APIKey(ctx context.Context, vendor string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectVendorCredential, vendor)
	var key string
	if err := row.Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(key), nil
}

func (s *Store) SetAPIKey(ctx context.Context, vendor, key string) error {
	if !KnownVendor(vendor) {
		return errors.New("unknown vendor " + vendor)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New(vendor + " api key is required")
	}
	return s.upsert(ctx, vendor, key, nil)
}

func (s *Store) upsert(ctx context.Context, vendor, key string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertVendorCredential, vendor, key, raw)
	return err
}
