package validation

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kyleking/segmentsql/internal/schema"
)

// RunStatic runs the syntax and schema validators concurrently and merges
// their verdicts in the order [syntax, schema]
func RunStatic(ctx context.Context, sql string, def *schema.Definition, validator SchemaValidator) Verdict {
	verdicts := make([]Verdict, 2)

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		verdicts[0] = CheckSyntax(sql)
		return nil
	})

	g.Go(func() error {
		verdicts[1] = CheckConformance(validator, sql, def)
		return nil
	})

	// validators report through verdicts, never through errors
	_ = g.Wait()

	return Merge(verdicts...)
}
