package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedbackInput_Validate(t *testing.T) {
	rating := func(n int) *int { return &n }

	ok := FeedbackInput{Category: " Bug ", Message: " Export button does nothing ", Rating: rating(2)}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, "bug", ok.Category)
	assert.Equal(t, "Export button does nothing", ok.Message)

	noRating := FeedbackInput{Category: "feature", Message: "Add Arabic PDF invoices"}
	assert.NoError(t, noRating.Validate())

	bad := []FeedbackInput{
		{Category: "praise", Message: "nice"},
		{Category: "other", Message: "   "},
		{Category: "other", Message: "x", Rating: rating(0)},
		{Category: "other", Message: "x", Rating: rating(6)},
		{Category: "other", Message: strings.Repeat("a", maxFeedbackLength+1)},
	}
	for _, in := range bad {
		assert.ErrorIs(t, in.Validate(), ErrInvalid)
	}
}

func TestNewReferralCode(t *testing.T) {
	a, b := newReferralCode(), newReferralCode()
	assert.Len(t, a, referralCodeLength)
	assert.Equal(t, strings.ToUpper(a), a)
	assert.NotEqual(t, a, b)
}
