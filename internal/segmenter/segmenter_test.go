package segmenter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentNumberedMarkers(t *testing.T) {
	text := "RENTAL AGREEMENT\n\n1. The tenant shall pay rent of $2000 monthly.\n2. The security deposit is $4000.\n2.1 The deposit is refundable within 30 days.\n3) Either party may terminate with 60 days notice.\n"

	s := New(Config{MaxClauseLength: 1200})
	clauses := s.Segment("doc-a", text)

	require.Len(t, clauses, 5)
	assert.Equal(t, TypeParagraph, clauses[0].ClauseType)
	assert.Contains(t, clauses[0].Text, "RENTAL AGREEMENT")
	for _, c := range clauses[1:] {
		assert.Equal(t, TypeNumbered, c.ClauseType)
	}
	assert.Contains(t, clauses[3].Text, "refundable")
}

func TestSegmentLetteredMarkers(t *testing.T) {
	text := "Obligations:\n(a) maintain the premises in good order;\n(b) not sublet without written consent;\n(iv) carry renter's insurance.\n"

	s := New(Config{})
	clauses := s.Segment("doc-b", text)

	require.Len(t, clauses, 4)
	assert.Equal(t, TypeLettered, clauses[1].ClauseType)
	assert.Equal(t, TypeLettered, clauses[3].ClauseType)
	assert.Contains(t, clauses[3].Text, "insurance")
}

func TestSegmentSectionHeadings(t *testing.T) {
	text := "Section 1 Definitions\nTerms used herein have the meanings below.\nSection 2 Compensation\nThe employee receives an annual salary.\nArticle III Termination\nEmployment is at will.\n"

	s := New(Config{})
	clauses := s.Segment("doc-c", text)

	require.Len(t, clauses, 3)
	for _, c := range clauses {
		assert.Equal(t, TypeSection, c.ClauseType)
	}
}

func TestSegmentParagraphFallback(t *testing.T) {
	text := "The landlord agrees to lease the apartment.\n\nThe tenant agrees to pay rent on the first of each month.\n\nBoth parties agree to the terms above."

	s := New(Config{})
	clauses := s.Segment("doc-d", text)

	require.Len(t, clauses, 3)
	for _, c := range clauses {
		assert.Equal(t, TypeParagraph, c.ClauseType)
	}
}

func TestSegmentNoStructureSingleClause(t *testing.T) {
	text := "This agreement is made between the parties and covers all terms."

	s := New(Config{})
	clauses := s.Segment("doc-e", text)

	require.Len(t, clauses, 1)
	assert.Equal(t, TypeWhole, clauses[0].ClauseType)
	assert.Equal(t, 0, clauses[0].Position)
}

func TestSegmentSentenceFallbackForLongStretch(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("The borrower shall repay the outstanding principal together with accrued interest on the schedule set out in the attached exhibit. ")
	}

	s := New(Config{MaxClauseLength: 300})
	clauses := s.Segment("doc-f", b.String())

	require.Greater(t, len(clauses), 1)
	for _, c := range clauses {
		assert.Equal(t, TypeSentence, c.ClauseType)
		assert.LessOrEqual(t, len(c.Text), 300+len("The borrower shall repay"))
	}
}

func TestSegmentPositionsContiguous(t *testing.T) {
	text := "1. First clause text here.\n2. Second clause text here.\n\nUnmarked trailing paragraph."

	s := New(Config{})
	clauses := s.Segment("doc-g", text)

	require.NotEmpty(t, clauses)
	for i, c := range clauses {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, ClauseID("doc-g", i), c.ID)
		if i > 0 {
			assert.GreaterOrEqual(t, c.Start, clauses[i-1].End, "spans must not overlap")
		}
	}
}

func TestSegmentReconstruction(t *testing.T) {
	text := "Preamble text.\n\n1. Rent is due monthly.\n2. Deposit is refundable.\n\nClosing remarks apply to all."

	s := New(Config{})
	clauses := s.Segment("doc-h", text)
	require.NotEmpty(t, clauses)

	strip := func(in string) string {
		return strings.Join(strings.Fields(in), " ")
	}
	var parts []string
	for _, c := range clauses {
		parts = append(parts, c.Text)
	}
	assert.Equal(t, strip(text), strip(strings.Join(parts, " ")))
}

func TestSegmentEmptyInput(t *testing.T) {
	s := New(Config{})
	assert.Nil(t, s.Segment("doc-i", ""))
	assert.Nil(t, s.Segment("doc-j", "   \n\t  "))
}
