package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestModelPrice_Cost(t *testing.T) {
	p := ModelPrice{
		InputPerToken:  decimal.NewFromFloat(0.00001),
		OutputPerToken: decimal.NewFromFloat(0.00003),
	}
	cost := p.Cost(1000, 500)
	want := decimal.NewFromFloat(0.01 + 0.015)
	assert.True(t, want.Equal(cost), "got %s want %s", cost, want)
}

func TestRejectedError_Error(t *testing.T) {
	err := &RejectedError{Reason: RejectInsufficientCredits}
	assert.Equal(t, "InsufficientCredits", err.Error())

	withDetail := &RejectedError{Reason: RejectPerCallLimit, Detail: "5.00"}
	assert.Equal(t, "PerCallLimit: 5.00", withDetail.Error())
}
