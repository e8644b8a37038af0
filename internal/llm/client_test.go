package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

// fakeModel returns scripted responses, one per call.
type fakeModel struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	content := ""
	if i < len(f.responses) {
		content = f.responses[i]
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, nil)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func newTestClient(m llms.Model, retries int) *Client {
	return &Client{
		model:      m,
		timeout:    time.Second,
		maxRetries: retries,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     zap.NewNop(),
	}
}

func TestCompleteRejectsEmptyPrompt(t *testing.T) {
	c := newTestClient(&fakeModel{}, 0)
	_, err := c.Complete(context.Background(), "   ", Constraints{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestCompleteRetriesUnavailable(t *testing.T) {
	m := &fakeModel{
		errs:      []error{errors.New("connection refused"), nil},
		responses: []string{"", "recovered"},
	}
	c := newTestClient(m, 2)

	out, err := c.Complete(context.Background(), "explain this", Constraints{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 2, m.calls)
}

func TestCompleteExhaustsRetries(t *testing.T) {
	boom := errors.New("boom")
	m := &fakeModel{errs: []error{boom, boom, boom}}
	c := newTestClient(m, 2)

	_, err := c.Complete(context.Background(), "explain this", Constraints{})
	assert.ErrorIs(t, err, document.ErrUpstreamUnavailable)
	assert.Equal(t, 3, m.calls)
}

func TestClassify(t *testing.T) {
	taxonomy := []string{"rental", "employment", "loan", "government"}

	tests := []struct {
		name     string
		response string
		want     string
		wantErr  error
	}{
		{name: "exact label", response: "rental", want: "rental"},
		{name: "case and whitespace", response: "  Loan \n", want: "loan"},
		{name: "label inside sentence", response: "This is an employment contract.", want: "employment"},
		{name: "off-taxonomy", response: "cookbook", wantErr: document.ErrUpstreamDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(&fakeModel{responses: []string{tt.response}}, 0)
			got, err := c.Classify(context.Background(), "some clause text", taxonomy)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
