package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSeatChanged(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	p := NewSeatsPubSub(rdb)

	var got SeatChange
	mock.CustomMatch(func(_, actual []any) error {
		if len(actual) != 3 || actual[1] != ChannelSeatsChanged() {
			return errors.New("unexpected publish")
		}
		b, ok := actual[2].([]byte)
		if !ok {
			return errors.New("payload is not bytes")
		}
		return json.Unmarshal(b, &got)
	}).ExpectPublish(ChannelSeatsChanged(), nil).SetVal(1)

	require.NoError(t, p.PublishSeatChanged(context.Background(), 5, 12, domain.SeatTaken))

	assert.Equal(t, "seat_changed", got.Type)
	assert.Equal(t, int64(5), got.SessionID)
	assert.Equal(t, 12, got.Seat)
	assert.Equal(t, domain.SeatTaken, got.Status)
	assert.NotZero(t, got.TsUnix)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishSeatChangedOnNil(t *testing.T) {
	var p *SeatsPubSub
	assert.NoError(t, p.PublishSeatChanged(context.Background(), 1, 1, domain.SeatAvailable))
}
