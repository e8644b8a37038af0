package analyzer

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
	"github.com/fyrsmithlabs/clausewise/internal/llm"
)

// classifyHeadBytes bounds how much document text the type classifier
// sees. The opening of a contract identifies its kind; the rest is noise
// and token cost.
const classifyHeadBytes = 2048

// TypeDetector assigns a document type from the document's opening text.
type TypeDetector struct {
	cls    llm.Classifier
	logger *zap.Logger
}

// NewTypeDetector creates a TypeDetector.
func NewTypeDetector(cls llm.Classifier, logger *zap.Logger) *TypeDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypeDetector{cls: cls, logger: logger}
}

// Detect classifies the document text into one of the known types.
// Classification failures fall back to unknown rather than erroring; an
// unknown type only costs terminology bias and pattern-table selection.
func (d *TypeDetector) Detect(ctx context.Context, text string) document.Type {
	head := truncateBytes(text, classifyHeadBytes)

	taxonomy := make([]string, 0, len(document.Types()))
	for _, t := range document.Types() {
		taxonomy = append(taxonomy, string(t))
	}

	label, err := d.cls.Classify(ctx, head, taxonomy)
	if err != nil {
		d.logger.Warn("document type classification failed, using unknown", zap.Error(err))
		return document.TypeUnknown
	}
	return document.ParseType(label)
}
