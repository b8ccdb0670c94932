package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFailure(t *testing.T) {
	assert.Equal(t, FailureQuota, ClassifyFailure(&QuotaError{Source: SourceDirectory}))
	assert.Equal(t, FailureQuota, ClassifyFailure(fmt.Errorf("x: %w", ErrQuotaExhausted)))
	assert.Equal(t, FailurePermanent, ClassifyFailure(NewPermanentError("op", errors.New("404"))))
	assert.Equal(t, FailureTransient, ClassifyFailure(NewTransientError("op", errors.New("503"))))
	assert.Equal(t, FailureTransient, ClassifyFailure(errors.New("unclassified")))
}

func TestDeadLetterID(t *testing.T) {
	q := Query{CityID: "lisbon", Params: map[string]string{"page": "3"}}

	a := DeadLetterID("run-1", "src-1", q)
	b := DeadLetterID("run-1", "src-1", Query{CityID: "lisbon", Params: map[string]string{"page": "3"}})
	c := DeadLetterID("run-2", "src-1", q)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestPipelineSettings_Defaults(t *testing.T) {
	s := DefaultPipelineSettings()

	assert.Equal(t, 4, s.Retry.MaxAttempts)
	assert.Equal(t, 16, s.Classifier.BatchSize)
	assert.Equal(t, AIProviderHashing, s.Embedding.Provider)
	assert.Equal(t, 2000, s.LimitsFor(SourceDirectory).DailyQuota)
	assert.Equal(t, DefaultSourceLimits(), s.LimitsFor("unknown"))
}

func TestAIProvider(t *testing.T) {
	assert.True(t, AIProviderOllama.IsValid())
	assert.True(t, AIProviderNone.IsValid())
	assert.False(t, AIProvider("anthropic-ish").IsValid())
	assert.True(t, AIProviderOpenAI.RequiresAPIKey())
	assert.False(t, AIProviderOllama.RequiresAPIKey())
	assert.Equal(t, "hashing", AIProviderHashing.String())
}
