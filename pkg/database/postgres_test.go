package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsLockContention(t *testing.T) {
	assert.True(t, IsLockContention(&pq.Error{Code: "55P03"}))
	assert.True(t, IsLockContention(fmt.Errorf("lock pair: %w", &pq.Error{Code: "40001"})))
	assert.True(t, IsLockContention(&pq.Error{Code: "40P01"}))
	assert.False(t, IsLockContention(&pq.Error{Code: "23505"}))
	assert.False(t, IsLockContention(errors.New("connection refused")))
}

func TestConstraintHelpers(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsCheckViolation(&pq.Error{Code: "23514"}))
	assert.False(t, IsCheckViolation(nil))
}
