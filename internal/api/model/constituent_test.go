package model

import (
	"testing"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstituent_Address2Nullable(t *testing.T) {
	c := domain.Constituent{ID: "c-1", OwnerID: "u-1", Email: "a@example.com", CreatedAt: time.Now().UTC()}

	row := FromDomain(c)
	assert.Nil(t, row.Address2)
	assert.Equal(t, "u-1", row.UserID)
	assert.Equal(t, c, row.ToDomain())

	c.Address2 = "Suite 9"
	row = FromDomain(c)
	require.NotNil(t, row.Address2)
	assert.Equal(t, "Suite 9", *row.Address2)
	assert.Equal(t, "Suite 9", row.ToDomain().Address2)
}
