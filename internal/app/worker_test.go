package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/event"
	"github.com/utafrali/SouvenirShop/internal/repository/postgres"
	"github.com/utafrali/SouvenirShop/internal/service"
)

func TestRunScheduledPurge(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()
	a := newTestApp(t, cfg)
	t.Cleanup(func() { _ = a.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	carts, err := a.openCarts(ctx)
	require.NoError(t, err)
	require.NoError(t, carts.Save(ctx, &domain.Cart{Login: "alice", Items: []domain.CartItem{
		{SouvenirID: "sold-out", Amount: 2},
		{SouvenirID: "in-stock", Amount: 1},
	}}))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	mock.ExpectQuery(`DELETE FROM souvenirs WHERE amount = 0 RETURNING id`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("sold-out"))

	a.Maintenance = service.NewMaintenanceService(
		postgres.NewSouvenirRepository(mock), carts, event.NoopPublisher{}, a.logger)
	w := &Worker{app: a, interval: 10 * time.Millisecond}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.runScheduledPurge(ctx)
	}()

	require.Eventually(t, func() bool {
		cart, err := carts.Get(context.Background(), "alice")
		return err == nil && len(cart.Items) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled purge did not stop on cancel")
	}

	cart, err := carts.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{{SouvenirID: "in-stock", Amount: 1}}, cart.Items)
	assert.NoError(t, mock.ExpectationsWereMet())
}
