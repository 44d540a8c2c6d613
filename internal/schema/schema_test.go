package schema

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/segmentsql/internal/errors"
)

func TestDecodeJSONPreservesOrder(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "sig-v2.json"))
	require.NoError(t, err)

	def, err := Decode("sig-v2", data)
	require.NoError(t, err)

	assert.Equal(t, "sig-v2", def.ID)
	assert.Equal(t, "2.0", def.Version)
	assert.Equal(t, []string{"DATA", "EMAIL", "PHONE"}, def.TableNames())

	data2, ok := def.Table("data")
	require.True(t, ok)
	assert.Equal(t, "HOUSEHOLD_ID", data2.FieldNames()[0])
	assert.Equal(t, "INCOME_HH", data2.FieldNames()[1])

	income, ok := data2.Field("income_hh")
	require.True(t, ok)
	assert.True(t, income.IsEnumerated())
	assert.Len(t, income.ValidValues, 12)
	assert.Equal(t, "K. $100,000-$149,999", income.ValidValues[10])

	require.NotNil(t, def.EmailCampaignRules)
	assert.Equal(t, []string{"EMAIL.EMAIL_OPT_IN = 'Y'"}, def.EmailCampaignRules.RequiredFilters)
	assert.False(t, def.DirectMailRules.IsEmpty())
}

func TestDecodeYAML(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "retail.yaml"))
	require.NoError(t, err)

	def, err := Decode("retail", data)
	require.NoError(t, err)

	assert.Equal(t, "1", def.Version)
	assert.Equal(t, []string{"CUSTOMERS", "ORDERS"}, def.TableNames())
	assert.True(t, def.HasField("Customers", "TIER"))
	assert.False(t, def.HasField("orders", "tier"))
	assert.False(t, def.HasField("missing", "tier"))
	assert.Nil(t, def.EmailCampaignRules)
	assert.True(t, def.EmailCampaignRules.IsEmpty())
	assert.Equal(t, 5, def.FieldCount())

	customers, _ := def.Table("customers")
	pk, _ := customers.Field("customer_id")
	assert.True(t, pk.PrimaryKey)
	assert.Equal(t, "Loyalty members", customers.Description)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", "   "},
		{"not a mapping", "[1, 2]"},
		{"tables not a mapping", "tables: [1, 2]"},
		{"no tables", "version: 1"},
		{"malformed json", `{"tables": {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("x", []byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
		})
	}
}

func TestDefinitionMarshalJSONKeepsOrder(t *testing.T) {
	def := NewDefinition("demo", "3",
		NewTable("zeta", "", &Field{Name: "b", Type: "INT"}, &Field{Name: "a", Type: "INT"}),
		NewTable("alpha", "first letter"),
	)

	data, err := json.Marshal(def)
	require.NoError(t, err)

	var view definitionView
	require.NoError(t, json.Unmarshal(data, &view))

	require.Len(t, view.Tables, 2)
	assert.Equal(t, "zeta", view.Tables[0].Name)
	assert.Equal(t, "b", view.Tables[0].Fields[0].Name)
	assert.Equal(t, "alpha", view.Tables[1].Name)
}

func TestDuplicateNamesKeepFirstPosition(t *testing.T) {
	table := NewTable("t", "",
		&Field{Name: "id", Type: "INT"},
		&Field{Name: "ID", Type: "BIGINT"},
	)

	require.Len(t, table.Fields(), 1)

	field, _ := table.Field("id")
	assert.Equal(t, "BIGINT", field.Type)
}

func TestDirSource(t *testing.T) {
	source := DirSource{Dir: "testdata"}
	ctx := context.Background()

	ids, err := source.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"broken", "retail", "sig-v2"}, ids)

	_, err = source.Read(ctx, "../schema_test")
	assert.True(t, errors.IsType(err, errors.ErrTypeSchemaNotFound))

	_, err = source.Read(ctx, "nope")
	assert.True(t, errors.IsType(err, errors.ErrTypeSchemaNotFound))

	missing, err := DirSource{Dir: filepath.Join(t.TempDir(), "absent")}.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRegistryLoad(t *testing.T) {
	registry := NewDirRegistry("testdata")
	ctx := context.Background()

	def, err := registry.Load(ctx, "sig-v2")
	require.NoError(t, err)
	assert.True(t, def.HasTable("DATA"))

	again, err := registry.Load(ctx, " sig-v2 ")
	require.NoError(t, err)
	assert.Same(t, def, again)

	_, err = registry.Load(ctx, "unknown")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchemaNotFound))
	assert.Contains(t, errors.Message(err), "unknown")

	_, err = registry.Load(ctx, "broken")
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = registry.Load(ctx, "")
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestRegistryLoadsOnceConcurrently(t *testing.T) {
	registry := NewDirRegistry("testdata")
	ctx := context.Background()

	results := make([]*Definition, 8)

	var wg sync.WaitGroup

	for i := range results {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			def, err := registry.Load(ctx, "retail")
			assert.NoError(t, err)

			results[i] = def
		}(i)
	}

	wg.Wait()

	for _, def := range results {
		assert.Same(t, results[0], def)
	}

	assert.Equal(t, int64(1), registry.cache.GetStats().Loads)
}

func TestRegistryRegisterAndList(t *testing.T) {
	registry := NewRegistry(nil)
	ctx := context.Background()

	_, err := registry.Load(ctx, "inline")
	assert.True(t, errors.IsType(err, errors.ErrTypeSchemaNotFound))

	registry.Register(NewDefinition("inline", "1", NewTable("t", "")))

	def, err := registry.Load(ctx, "inline")
	require.NoError(t, err)
	assert.Equal(t, []string{"T"}, def.TableNames())

	dirRegistry := NewDirRegistry("testdata")
	dirRegistry.Register(NewDefinition("adhoc", "1"))

	ids, err := dirRegistry.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"adhoc", "broken", "retail", "sig-v2"}, ids)
}
