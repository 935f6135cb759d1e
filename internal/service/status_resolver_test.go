package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/activity-hours-api/internal/models"
)

func intPtr(v int) *int { return &v }

func TestResolveStatus(t *testing.T) {
	cases := []struct {
		name      string
		own       *int
		committed int
		limit     int
		policy    ZeroLimitPolicy
		want      models.ActivityStatus
	}{
		{"undecided under limit", nil, 8, 10, ZeroLimitUnbounded, models.ActivityPending},
		{"undecided at limit", nil, 10, 10, ZeroLimitUnbounded, models.ActivityLimitReached},
		{"undecided over limit", nil, 12, 10, ZeroLimitUnbounded, models.ActivityLimitReached},
		{"approved at limit", intPtr(4), 10, 10, ZeroLimitUnbounded, models.ActivityApproved},
		{"rejected at limit stays rejected", intPtr(0), 10, 10, ZeroLimitUnbounded, models.ActivityRejected},
		{"rejected under limit", intPtr(0), 0, 10, ZeroLimitUnbounded, models.ActivityRejected},
		{"zero limit unbounded", nil, 500, 0, ZeroLimitUnbounded, models.ActivityPending},
		{"zero limit blocked", nil, 0, 0, ZeroLimitBlocked, models.ActivityLimitReached},
		{"zero limit blocked decided", intPtr(3), 0, 0, ZeroLimitBlocked, models.ActivityApproved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveStatus(tc.own, tc.committed, tc.limit, tc.policy))
		})
	}
}

func TestResolveStatusIsDeterministic(t *testing.T) {
	for own := -1; own <= 12; own++ {
		var p *int
		if own >= 0 {
			p = intPtr(own)
		}
		for committed := 0; committed <= 12; committed++ {
			for limit := 0; limit <= 12; limit++ {
				for _, policy := range []ZeroLimitPolicy{ZeroLimitUnbounded, ZeroLimitBlocked} {
					first := ResolveStatus(p, committed, limit, policy)
					assert.Equal(t, first, ResolveStatus(p, committed, limit, policy))
					assert.True(t, first.Valid())
					if p != nil {
						assert.Equal(t, own, *p, "resolver must not mutate its input")
					}
				}
			}
		}
	}
}

func TestParseZeroLimitPolicy(t *testing.T) {
	assert.Equal(t, ZeroLimitBlocked, ParseZeroLimitPolicy(" Blocked "))
	assert.Equal(t, ZeroLimitUnbounded, ParseZeroLimitPolicy("unbounded"))
	assert.Equal(t, ZeroLimitUnbounded, ParseZeroLimitPolicy(""))
}
