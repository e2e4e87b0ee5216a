package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/pts_listener/internal/station"
	"github.com/GTDGit/pts_listener/internal/utils"
)

// StationDirectory is the read side of the station name table.
type StationDirectory interface {
	Names(system uint8) (station.Names, bool)
	Systems() []uint8
}

// StationHandler serves station names learned from parameter blocks.
type StationHandler struct {
	directory StationDirectory
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(directory StationDirectory) *StationHandler {
	return &StationHandler{directory: directory}
}

// ListSystems handles GET /v1/systems
func (h *StationHandler) ListSystems(c *gin.Context) {
	utils.Success(c, 200, "Systems retrieved", gin.H{"systems": systemNumbers(h.directory)})
}

// systemNumbers widens the system list so it encodes as a JSON array rather
// than a base64 byte string.
func systemNumbers(d StationDirectory) []int {
	systems := d.Systems()
	out := make([]int, len(systems))
	for i, s := range systems {
		out[i] = int(s)
	}
	return out
}

// GetStations handles GET /v1/systems/:system/stations
func (h *StationHandler) GetStations(c *gin.Context) {
	n, err := strconv.ParseUint(c.Param("system"), 10, 8)
	if err != nil {
		utils.Error(c, 400, "INVALID_SYSTEM", "System must be a number between 0 and 255")
		return
	}
	system := uint8(n)

	names, ok := h.directory.Names(system)
	if !ok {
		utils.Error(c, 404, "SYSTEM_NOT_FOUND", "No parameter block received for system")
		return
	}

	stations := make([]gin.H, 0, len(names))
	for i, name := range names {
		stations = append(stations, gin.H{"station": i, "name": name})
	}
	utils.Success(c, 200, "Stations retrieved", gin.H{
		"system":   system,
		"stations": stations,
	})
}
