package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewStaticDirectory(
		Principal{ID: 9, Username: "erin", Role: RoleCoordinator, Active: true},
		Principal{ID: 2, Username: "dr.bob", Role: RoleDoctor, Active: true},
	)

	p, ok, err := d.Principal(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dr.bob", p.Username)

	_, ok, err = d.Principal(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	d.Put(Principal{ID: 2, Username: "dr.bob", Role: RoleDoctor, Active: false})
	p, _, _ = d.Principal(ctx, 2)
	assert.False(t, p.Active)

	d.Put(Principal{ID: 5, Role: RoleUser, Active: true})
	all := d.All()
	require.Len(t, all, 3)
	assert.Equal(t, []int64{2, 5, 9}, []int64{all[0].ID, all[1].ID, all[2].ID})

	d.Remove(5)
	_, ok, _ = d.Principal(ctx, 5)
	assert.False(t, ok)
}
