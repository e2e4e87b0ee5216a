package correlator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/pts_listener/internal/models"
	"github.com/GTDGit/pts_listener/internal/station"
)

func newDirectory() *station.Directory {
	d := station.NewDirectory(nil)
	d.ReplaceAll(7, station.Names{"MAIN", "ER", "ICU", "PHARMACY", "LAB"})
	return d
}

func txPacket(kind models.PacketKind, source, dest, status, flags uint8) *models.Packet {
	return &models.Packet{
		Kind:     kind,
		Envelope: models.Envelope{SystemNumber: 7, StationNumber: 1},
		Transaction: &models.TransactionPayload{
			TransactionNumber: 42,
			StartTimeSeconds:  86400,
			DurationSeconds:   30,
			SourceStation:     source,
			DestStation:       dest,
			Status:            status,
			Flags:             flags,
		},
	}
}

func TestCorrelate_TransactionFromMainStation(t *testing.T) {
	c := New(newDirectory())

	ev, err := c.Correlate(txPacket(models.KindTransaction, 0, 3, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, models.KindTransaction, ev.Kind)
	assert.Equal(t, uint32(42), ev.CorrelationKey())
	assert.Equal(t, uint8(7), ev.System)
	assert.Equal(t, 0, ev.Status)
	assert.Equal(t, 0, ev.EventType)
	assert.Equal(t, 30, ev.Duration)
	assert.Equal(t, 0, ev.Source)
	assert.Equal(t, 3, ev.Destination)
	assert.Equal(t, time.Date(1980, 1, 2, 0, 0, 0, 0, time.UTC), ev.EventStart)
	assert.Equal(t, "MAIN", ev.MainStationName)
	assert.Equal(t, "PHARMACY", ev.SubStationName)
	assert.Nil(t, ev.ReceiverID)
}

func TestCorrelate_TransactionFromRemoteStationSwapsNames(t *testing.T) {
	c := New(newDirectory())

	ev, err := c.Correlate(txPacket(models.KindTransaction, 2, 4, 1, 0))
	require.NoError(t, err)

	assert.Equal(t, 2, ev.Source, "row values keep wire order")
	assert.Equal(t, 4, ev.Destination)
	assert.Equal(t, "LAB", ev.MainStationName)
	assert.Equal(t, "ICU", ev.SubStationName)
}

func TestCorrelate_TransactionUnknownSystem(t *testing.T) {
	c := New(station.NewDirectory(nil))

	ev, err := c.Correlate(txPacket(models.KindTransaction, 0, 3, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, ev.MainStationName)
	assert.Empty(t, ev.SubStationName)
}

func TestCorrelate_DoorEventMainDoor(t *testing.T) {
	c := New(newDirectory())

	ev, err := c.Correlate(txPacket(models.KindEvent, 2, 0, EventStatusDoorOpen, 0x01))
	require.NoError(t, err)

	assert.Equal(t, models.KindEvent, ev.Kind)
	assert.Equal(t, "ICU", ev.MainStationName)
	assert.Empty(t, ev.SubStationName)
}

func TestCorrelate_DoorEventRemoteDoor(t *testing.T) {
	c := New(newDirectory())

	ev, err := c.Correlate(txPacket(models.KindEvent, 2, 0, EventStatusDoorOpen, 0x02))
	require.NoError(t, err)

	assert.Empty(t, ev.MainStationName)
	assert.Equal(t, "ICU", ev.SubStationName)
}

func TestCorrelate_UnclassifiedEventKeepsRow(t *testing.T) {
	c := New(newDirectory())

	ev, err := c.Correlate(txPacket(models.KindEvent, 2, 3, 12, 0x01))
	require.NoError(t, err)

	assert.Empty(t, ev.MainStationName)
	assert.Empty(t, ev.SubStationName)
	assert.Equal(t, 12, ev.Status)
	assert.Equal(t, 12, ev.EventType)
}

func TestCorrelate_SecureRemoval(t *testing.T) {
	c := New(newDirectory())
	pkt := &models.Packet{
		Kind:     models.KindSecureRemoval,
		Envelope: models.Envelope{SystemNumber: 7, StationNumber: 3},
		SecureRemoval: &models.SecureRemovalPayload{
			TransactionNumber:  42,
			RemovalTimeSeconds: 60,
			CardID:             555,
			Status:             2,
		},
	}

	ev, err := c.Correlate(pkt)
	require.NoError(t, err)

	assert.Equal(t, uint32(42), ev.TransNum)
	assert.Equal(t, 3, ev.Source)
	assert.Equal(t, 2, ev.Status)
	assert.Equal(t, 2, ev.EventType)
	assert.Equal(t, int64(555), ev.Flags)
	require.NotNil(t, ev.ReceiverID)
	assert.Equal(t, int64(555), *ev.ReceiverID)
	assert.Equal(t, models.ControllerTime(60), ev.EventStart)
	assert.Equal(t, "PHARMACY", ev.SubStationName)
	assert.Empty(t, ev.MainStationName)
}

func TestCorrelate_LegacyCardScanUsesRemovalShape(t *testing.T) {
	c := New(newDirectory())
	pkt := &models.Packet{
		Kind:     models.KindCardScan,
		Envelope: models.Envelope{SystemNumber: 7, StationNumber: 1},
		SecureRemoval: &models.SecureRemovalPayload{
			TransactionNumber: 9,
			CardID:            200_000_000_000,
		},
	}

	ev, err := c.Correlate(pkt)
	require.NoError(t, err)
	assert.Equal(t, models.KindCardScan, ev.Kind)
	assert.Equal(t, uint32(9), ev.TransNum)
	assert.Equal(t, int64(200_000_000_000), *ev.ReceiverID)
	assert.Equal(t, "ER", ev.SubStationName)
}

func TestCorrelate_CurrentCardScan(t *testing.T) {
	c := New(newDirectory())
	pkt := &models.Packet{
		Kind:     models.KindCardScan,
		Envelope: models.Envelope{SystemNumber: 7, StationNumber: 4},
		CardScan: &models.CardScanPayload{
			CardID:          123456,
			CardSite:        99,
			Authorized:      true,
			ScanTimeSeconds: 120,
		},
	}

	ev, err := c.Correlate(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ev.TransNum)
	assert.Equal(t, models.EventTypeCardScan, ev.EventType)
	assert.Equal(t, 4, ev.Source)
	assert.Equal(t, int64(99), ev.Flags)
	assert.Equal(t, int64(123456), *ev.ReceiverID)
	require.NotNil(t, ev.ReceiveTime)
	assert.Equal(t, models.ControllerTime(120), *ev.ReceiveTime)
	assert.Equal(t, ev.EventStart, *ev.ReceiveTime)
	assert.Equal(t, "LAB", ev.SubStationName)
}

func TestCorrelate_RejectsNonEventPackets(t *testing.T) {
	c := New(newDirectory())

	_, err := c.Correlate(&models.Packet{Kind: models.KindParameterBlock, ParameterBlock: &models.ParameterBlockPayload{}})
	assert.Error(t, err)

	_, err = c.Correlate(&models.Packet{Kind: models.KindHeartbeat, Heartbeat: &models.HeartbeatPayload{}})
	assert.Error(t, err)

	_, err = c.Correlate(&models.Packet{Kind: models.KindTransaction})
	assert.Error(t, err)
}
