package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestValidatorValidate(t *testing.T) {
	v := NewValidator(DefaultConfig(), zaptest.NewLogger(t))
	contexts := []string{
		"Check tire pressure monthly.",
		"Rotate the tires every\n5000 miles.",
		"The brake pad wears faster in cold climates.",
		"Replace the pad every 20000 miles.",
	}

	t.Run("Claimed passage contains the quote", func(t *testing.T) {
		res := v.Validate(contexts, []Citation{{SourceID: Resolved(2), Quote: "rotate the tires every 5000 miles."}})
		assert.Equal(t, []int{1}, res.Indices)
		require.Len(t, res.Verdicts, 1)
		assert.Equal(t, OutcomeClaimed, res.Verdicts[0].Outcome)
	})

	t.Run("Out of range id is rescued by full scan", func(t *testing.T) {
		res := v.Validate(contexts, []Citation{{SourceID: Resolved(9), Quote: "The brake pad wears faster in cold climates."}})
		assert.Equal(t, []int{2}, res.Indices, "Expected rescue to find passage 2")
		assert.Equal(t, OutcomeRescued, res.Verdicts[0].Outcome)
	})

	t.Run("Zero and negative ids are rescued", func(t *testing.T) {
		res := v.Validate(contexts, []Citation{
			{SourceID: Resolved(0), Quote: "Check tire pressure monthly."},
			{SourceID: Resolved(-3), Quote: "Check tire pressure monthly."},
		})
		assert.Equal(t, []int{0}, res.Indices)
	})

	t.Run("Unresolved id is rescued", func(t *testing.T) {
		res := v.Validate(contexts, []Citation{{SourceID: Unresolved, Quote: "replace the pad every 20000 miles"}})
		assert.Equal(t, []int{3}, res.Indices)
		assert.True(t, res.Has(3))
		assert.False(t, res.Has(2))
	})

	t.Run("Repeated citations collapse", func(t *testing.T) {
		res := v.Validate(contexts, []Citation{
			{SourceID: Resolved(4), Quote: "Replace the pad every 20000 miles."},
			{SourceID: Resolved(1), Quote: "Replace the pad every 20000 miles."},
		})
		assert.Equal(t, []int{3}, res.Indices, "Expected a single deduplicated index")
		assert.Len(t, res.Verdicts, 2, "Expected a verdict for each citation")
		assert.Equal(t, OutcomeClaimed, res.Verdicts[0].Outcome)
		assert.Equal(t, OutcomeRescued, res.Verdicts[1].Outcome)
	})

	t.Run("Ungrounded citation is dropped", func(t *testing.T) {
		res := v.Validate(contexts, []Citation{
			{SourceID: Resolved(1), Quote: "Flush the coolant system annually."},
			{SourceID: Resolved(1), Quote: "Check tire pressure monthly."},
		})
		assert.Equal(t, []int{0}, res.Indices, "Expected the grounded citation to survive")
		assert.Equal(t, OutcomeDropped, res.Verdicts[0].Outcome)
		assert.Equal(t, -1, res.Verdicts[0].Index)
	})

	t.Run("Indices are sorted", func(t *testing.T) {
		res := v.Validate(contexts, []Citation{
			{SourceID: Resolved(4), Quote: "Replace the pad every 20000 miles."},
			{SourceID: Resolved(1), Quote: "Check tire pressure monthly."},
		})
		assert.Equal(t, []int{0, 3}, res.Indices)
	})

	t.Run("No citations", func(t *testing.T) {
		res := v.Validate(contexts, nil)
		assert.NotNil(t, res.Indices)
		assert.Empty(t, res.Indices)
	})
}
