package listener

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/pts_listener/internal/correlator"
	"github.com/GTDGit/pts_listener/internal/models"
	"github.com/GTDGit/pts_listener/internal/protocol"
	"github.com/GTDGit/pts_listener/internal/service"
	"github.com/GTDGit/pts_listener/internal/station"
)

type MockEventLogStore struct {
	mock.Mock
}

func (m *MockEventLogStore) InsertEvent(ctx context.Context, ev *models.LogicalEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockEventLogStore) MarkReceived(ctx context.Context, system uint8, transNum uint32, receiverID int64, receivedAt time.Time) (int64, error) {
	args := m.Called(ctx, system, transNum, receiverID, receivedAt)
	return args.Get(0).(int64), args.Error(1)
}

type MockStationStore struct {
	mock.Mock
}

func (m *MockStationStore) ReplaceSystem(ctx context.Context, system uint8, names [models.StationsPerSystem]string) error {
	args := m.Called(ctx, system, names)
	return args.Error(0)
}

type countingSession struct {
	checks  atomic.Int32
	touches atomic.Int32
}

func (s *countingSession) CloseIfIdle() bool {
	s.checks.Add(1)
	return false
}

func (s *countingSession) Touch() { s.touches.Add(1) }

type recordingLog struct {
	packets []*models.Packet
}

func (r *recordingLog) Write(pkt *models.Packet) { r.packets = append(r.packets, pkt) }

type fixture struct {
	dispatcher *Dispatcher
	events     *MockEventLogStore
	stations   *MockStationStore
	directory  *station.Directory
	session    *countingSession
	packetLog  *recordingLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	decoder, err := protocol.NewDecoder(protocol.Current)
	require.NoError(t, err)

	f := &fixture{
		events:    new(MockEventLogStore),
		stations:  new(MockStationStore),
		directory: station.NewDirectory(nil),
		session:   &countingSession{},
		packetLog: &recordingLog{},
	}
	f.directory.ReplaceAll(7, station.Names{"MAIN", "ER", "ICU", "PHARMACY"})

	f.dispatcher = NewDispatcher(Deps{
		Decoder:    decoder,
		Correlator: correlator.New(f.directory),
		Store:      service.NewPersistenceGateway(f.events, f.stations, f.session),
		Stations:   f.directory,
		Session:    f.session,
		PacketLog:  f.packetLog,
	}, DefaultBufferSize)
	return f
}

func raw(data []byte) models.RawPacket {
	return models.RawPacket{ID: "test", Data: data, ReceivedAt: time.Now()}
}

// transactionDatagram lays out a Current revision transaction.
func transactionDatagram(cmd byte, system uint8, transNum uint32, src, dst, status, flags uint8) []byte {
	b := make([]byte, 24)
	b[0] = system
	b[2] = 1
	b[3] = cmd
	b[10], b[11], b[12], b[13] = byte(transNum), byte(transNum>>8), byte(transNum>>16), byte(transNum>>24)
	b[14], b[15], b[16] = 0x80, 0x51, 0x01 // 86400
	b[18] = 30
	b[20] = src
	b[21] = dst
	b[22] = status
	b[23] = flags
	return b
}

func parameterBlockDatagram(system uint8, names ...string) []byte {
	b := make([]byte, 290)
	b[0] = system
	b[3] = 'S'
	b[10] = system
	for i, name := range names {
		copy(b[28+i*12:28+i*12+11], name)
	}
	return b
}

func TestHandlePacket_TransactionFromMainStation(t *testing.T) {
	f := newFixture(t)

	f.events.On("InsertEvent", mock.Anything, mock.MatchedBy(func(ev *models.LogicalEvent) bool {
		return ev.System == 7 && ev.TransNum == 42 && ev.Status == 0 &&
			ev.MainStationName == "MAIN" && ev.SubStationName == "PHARMACY"
	})).Return(nil).Once()

	f.dispatcher.HandlePacket(context.Background(), raw(transactionDatagram('X', 7, 42, 0, 3, 0, 0)))

	f.events.AssertExpectations(t)
	f.events.AssertNumberOfCalls(t, "InsertEvent", 1)
	f.events.AssertNotCalled(t, "MarkReceived", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, f.packetLog.packets, 1)
	assert.Equal(t, int32(1), f.session.touches.Load())
}

func TestHandlePacket_UnknownDiscriminantIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.HandlePacket(context.Background(), raw(transactionDatagram('Z', 7, 42, 0, 3, 0, 0)))

	f.events.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything)
	f.stations.AssertNotCalled(t, "ReplaceSystem", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.packetLog.packets)
	assert.Equal(t, int32(0), f.session.touches.Load())
}

func TestHandlePacket_ShortPacketIsSkipped(t *testing.T) {
	f := newFixture(t)

	err := f.dispatcher.handle(context.Background(), raw(transactionDatagram('X', 7, 42, 0, 3, 0, 0)[:20]))
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrShortPacket)
	f.events.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything)
}

func TestHandlePacket_HeartbeatIsDiscarded(t *testing.T) {
	f := newFixture(t)
	hb := make([]byte, 26)
	hb[3] = 'E'

	require.NoError(t, f.dispatcher.handle(context.Background(), raw(hb)))
	assert.Empty(t, f.packetLog.packets)
	f.events.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything)
}

func TestHandlePacket_ParameterBlock(t *testing.T) {
	f := newFixture(t)

	want := station.Names{"LOBBY", "OR-1", "OR-2"}
	f.stations.On("ReplaceSystem", mock.Anything, uint8(3), want).Return(nil).Once()

	require.NoError(t, f.dispatcher.handle(context.Background(), raw(parameterBlockDatagram(3, "LOBBY", "OR-1", "OR-2"))))

	f.stations.AssertExpectations(t)
	assert.Equal(t, "OR-2", f.directory.Lookup(3, 2))
	assert.Len(t, f.packetLog.packets, 1)
}

func TestHandlePacket_ParameterBlockWriteFailureKeepsDirectory(t *testing.T) {
	f := newFixture(t)

	f.stations.On("ReplaceSystem", mock.Anything, uint8(3), mock.Anything).Return(errors.New("commit: failed")).Once()

	err := f.dispatcher.handle(context.Background(), raw(parameterBlockDatagram(3, "LOBBY")))
	require.Error(t, err)

	var we *service.WriteError
	assert.ErrorAs(t, err, &we)
	assert.Equal(t, "LOBBY", f.directory.Lookup(3, 0))
}

func TestHandlePacket_PersistFailureContinues(t *testing.T) {
	f := newFixture(t)

	f.events.On("InsertEvent", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	f.events.On("InsertEvent", mock.Anything, mock.Anything).Return(nil).Once()

	err := f.dispatcher.handle(context.Background(), raw(transactionDatagram('X', 7, 1, 0, 1, 0, 0)))
	require.Error(t, err)

	require.NoError(t, f.dispatcher.handle(context.Background(), raw(transactionDatagram('X', 7, 2, 0, 1, 0, 0))))
	f.events.AssertNumberOfCalls(t, "InsertEvent", 2)
}

func TestHandlePacket_DoorEvent(t *testing.T) {
	f := newFixture(t)

	f.events.On("InsertEvent", mock.Anything, mock.MatchedBy(func(ev *models.LogicalEvent) bool {
		return ev.Kind == models.KindEvent && ev.MainStationName == "ICU" && ev.SubStationName == ""
	})).Return(nil).Once()

	require.NoError(t, f.dispatcher.handle(context.Background(), raw(transactionDatagram('V', 7, 9, 2, 0, 64, 1))))
	f.events.AssertExpectations(t)
}

func TestRun_ReceivesUntilCancelled(t *testing.T) {
	f := newFixture(t)

	received := make(chan struct{}, 1)
	f.events.On("InsertEvent", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		received <- struct{}{}
	}).Once()

	conn, err := Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Run(ctx, conn) }()

	client, err := net.Dial("udp4", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte{0, 0, 0, 'Z'})
	require.NoError(t, err)
	_, err = client.Write(transactionDatagram('X', 7, 42, 0, 3, 0, 0))
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("transaction was not persisted")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	f.events.AssertNumberOfCalls(t, "InsertEvent", 1)
	assert.GreaterOrEqual(t, f.session.checks.Load(), int32(1))
}
