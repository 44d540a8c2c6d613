// Package testutil provides common constants and utilities for tests
package testutil

import "time"

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second

	// TestConcurrency is a common number of concurrent workers in tests
	TestConcurrency = 20
)

// Common test strings
const (
	// TestSchemaID is the shipped household identity-graph schema
	TestSchemaID = "sig-v2"

	// TestModel is the model name reported by MockLLM
	TestModel = "mock-model"

	// TestPrompt is a typical audience description
	TestPrompt = "affluent families with children"

	// AffluentFamiliesSQL is a valid segment query against sig-v2
	AffluentFamiliesSQL = "SELECT DISTINCT d.HOUSEHOLD_ID FROM DATA d WHERE d.INCOME_HH IN ('K. $100,000-$149,999')"

	// DropTableSQL is a query every validator must reject
	DropTableSQL = "DROP TABLE DATA"
)
