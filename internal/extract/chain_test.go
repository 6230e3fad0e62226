package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cashback-intel/internal/model"
)

type stubStrategy struct {
	name   string
	result *model.ExtractionResult
	err    error
	calls  int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Extract(_ context.Context, _ *model.ExtractionContext) (*model.ExtractionResult, error) {
	s.calls++
	return s.result, s.err
}

func result(conf float64, method string) *model.ExtractionResult {
	return &model.ExtractionResult{Merchant: "Myer", Offer: "5%", Confidence: conf, Method: method}
}

type mockLearner struct{ mock.Mock }

func (m *mockLearner) Observe(ctx context.Context, ec *model.ExtractionContext, r *model.ExtractionResult) (bool, error) {
	args := m.Called(ctx, ec, r)
	return args.Bool(0), args.Error(1)
}

func newContext(t *testing.T, raw string) *model.ExtractionContext {
	t.Helper()
	ec, err := model.NewExtractionContext("https://www.shopback.com.au/store/myer", raw)
	require.NoError(t, err)
	return ec
}

func TestChain_StopsAtHighConfidence(t *testing.T) {
	t.Parallel()

	first := &stubStrategy{name: "first", result: result(0.95, "first")}
	second := &stubStrategy{name: "second", result: result(0.6, "second")}
	c := NewChain(ChainConfig{Level: model.LevelStandard, HighConfidence: 0.9}, nil, first, second)

	ec := newContext(t, "<html></html>")
	r, err := c.Run(context.Background(), ec)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "first", r.Method)
	assert.Equal(t, 0, second.calls)
	assert.Len(t, ec.Attempts, 1)
}

func TestChain_KeepsBest(t *testing.T) {
	t.Parallel()

	a := &stubStrategy{name: "a", result: result(0.6, "a")}
	b := &stubStrategy{name: "b", result: result(0.8, "b")}
	c := &stubStrategy{name: "c", result: result(0.5, "c")}
	chain := NewChain(ChainConfig{Level: model.LevelBasic}, nil, a, b, c)

	ec := newContext(t, "<html></html>")
	r, err := chain.Run(context.Background(), ec)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "b", r.Method)
	assert.Equal(t, ec.URL, r.URL)
	assert.Equal(t, model.LevelBasic, r.Level)
	assert.Len(t, ec.Attempts, 3)
}

func TestChain_ClampsConfidence(t *testing.T) {
	t.Parallel()

	s := &stubStrategy{name: "s", result: result(1.7, "s")}
	r, err := NewChain(ChainConfig{}, nil, s).Run(context.Background(), newContext(t, "<html></html>"))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 1.0, r.Confidence)
}

func TestChain_NothingFound(t *testing.T) {
	t.Parallel()

	a := &stubStrategy{name: "a"}
	b := &stubStrategy{name: "b"}
	ec := newContext(t, "<html></html>")
	r, err := NewChain(ChainConfig{}, nil, a, b).Run(context.Background(), ec)
	require.NoError(t, err)
	assert.Nil(t, r)
	require.Len(t, ec.Attempts, 2)
	assert.False(t, ec.Attempts[0].Success)
}

func TestChain_RecordsErrorsAndContinues(t *testing.T) {
	t.Parallel()

	a := &stubStrategy{name: "a", err: errors.New("backend down")}
	b := &stubStrategy{name: "b", result: result(0.6, "b")}
	ec := newContext(t, "<html></html>")
	r, err := NewChain(ChainConfig{}, nil, a, b).Run(context.Background(), ec)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "b", r.Method)
	assert.Equal(t, "backend down", ec.Attempts[0].Error)
}

func TestChain_FatalErrorAborts(t *testing.T) {
	t.Parallel()

	a := &stubStrategy{name: "a", err: &FatalError{Method: "a", Err: errors.New("disk full")}}
	b := &stubStrategy{name: "b", result: result(0.6, "b")}
	r, err := NewChain(ChainConfig{}, nil, a, b).Run(context.Background(), newContext(t, "<html></html>"))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Nil(t, r)
	assert.Equal(t, 0, b.calls)
}

func TestChain_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &stubStrategy{name: "a", result: result(0.6, "a")}
	_, err := NewChain(ChainConfig{}, nil, a).Run(ctx, newContext(t, "<html></html>"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.calls)
}

func TestChain_LearnsFromConfidentResults(t *testing.T) {
	t.Parallel()

	learner := &mockLearner{}
	learner.On("Observe", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Once()

	a := &stubStrategy{name: "a", result: result(0.75, "a")}
	_, err := NewChain(ChainConfig{LearningThreshold: 0.7}, learner, a).Run(context.Background(), newContext(t, "<html></html>"))
	require.NoError(t, err)
	learner.AssertExpectations(t)
}

func TestChain_SkipsLearningBelowThreshold(t *testing.T) {
	t.Parallel()

	learner := &mockLearner{}
	a := &stubStrategy{name: "a", result: result(0.6, "a")}
	_, err := NewChain(ChainConfig{LearningThreshold: 0.7}, learner, a).Run(context.Background(), newContext(t, "<html></html>"))
	require.NoError(t, err)
	learner.AssertNotCalled(t, "Observe", mock.Anything, mock.Anything, mock.Anything)
}

func TestChain_LearnerFailureIsFatal(t *testing.T) {
	t.Parallel()

	learner := &mockLearner{}
	learner.On("Observe", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("write failed"))

	a := &stubStrategy{name: "a", result: result(0.8, "a")}
	_, err := NewChain(ChainConfig{}, learner, a).Run(context.Background(), newContext(t, "<html></html>"))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestChain_TeachesContextAware(t *testing.T) {
	t.Parallel()

	ca := NewContextAwareStrategy()
	inf := &stubStrategy{name: model.MethodInference, result: &model.ExtractionResult{
		Merchant: "Myer", Offer: "6%", Confidence: 0.95, Method: model.MethodInference,
	}}
	chain := NewChain(ChainConfig{}, nil, inf, ca)

	_, err := chain.Run(context.Background(), newContext(t, `<html><body><span id="store">Myer</span><b class="rate">6%</b></body></html>`))
	require.NoError(t, err)

	r, err := ca.Extract(context.Background(), newContext(t, `<html><body><span id="store">David Jones</span><b class="rate">4%</b></body></html>`))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "David Jones", r.Merchant)
	assert.Equal(t, "4%", r.Offer)
	assert.Equal(t, model.MethodContextAware, r.Method)
}
