package api

import (
	"time"

	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/goran-ethernal/ChainRuntime/pkg/subscription"
)

// PaginationResult contains pagination metadata.
type PaginationResult struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   uint64        `json:"snapshot_version"`
	Chains    []ChainStatus `json:"chains"`
}

// ChainStatus is the processing state of one chain.
type ChainStatus struct {
	ChainID          uint64         `json:"chain_id"`
	Cursor           *feed.Position `json:"cursor,omitempty"`
	LastBlock        uint64         `json:"last_block"`
	Halted           bool           `json:"halted"`
	Error            string         `json:"error,omitempty"`
	Subscriptions    int            `json:"subscriptions"`
	DynamicContracts int            `json:"dynamic_contracts"`
}

// EntityTypeInfo summarizes one entity type of the current snapshot.
type EntityTypeInfo struct {
	Type     string `json:"type"`
	Count    int    `json:"count"`
	Endpoint string `json:"endpoint"`
}

// EntityTypesResponse lists the entity types of the current snapshot.
type EntityTypesResponse struct {
	Version uint64           `json:"snapshot_version"`
	Types   []EntityTypeInfo `json:"types"`
}

// EntityResponse is a page of records of one entity type.
type EntityResponse struct {
	Type       string           `json:"type"`
	Version    uint64           `json:"snapshot_version"`
	Records    []store.Record   `json:"records"`
	Pagination PaginationResult `json:"pagination"`
}

// SubscriptionsResponse lists the subscriptions of one chain.
type SubscriptionsResponse struct {
	ChainID          uint64                         `json:"chain_id"`
	Subscriptions    []subscription.Subscription    `json:"subscriptions"`
	DynamicContracts []subscription.DynamicContract `json:"dynamic_contracts"`
}
