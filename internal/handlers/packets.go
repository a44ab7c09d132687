package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cosray/backend/internal/iotdb"
	"github.com/cosray/backend/internal/packets"
	"github.com/cosray/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	failedWriteDetail     = "Failed to write data to IoTDB"
	processingErrorDetail = "Error occurred while processing the request"
	invalidMuonDetail     = "Invalid muon packet payload"
	invalidTimelineDetail = "Invalid timeline packet payload"
	requiredMessage       = "This field is required."
)

// PacketHandler accepts detector packets.
type PacketHandler struct {
	service *services.PacketService
	log     zerolog.Logger
}

func NewPacketHandler(service *services.PacketService, log zerolog.Logger) *PacketHandler {
	return &PacketHandler{service: service, log: log}
}

// PacketRouter registers packet routes on the given router.
func PacketRouter(r chi.Router, service *services.PacketService, authMiddleware func(http.Handler) http.Handler, log zerolog.Logger) {
	handler := NewPacketHandler(service, log)

	r.With(authMiddleware).Post("/", handler.Create)
}

func (h *PacketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body any
	raw, err := parseJSONBody(w, r, &body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	object, ok := body.(map[string]any)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"non_field_errors": {fmt.Sprintf("Invalid data. Expected a dictionary, but got %s.", packets.JSONTypeName(body))},
		})
		return
	}

	req, fieldErrs := parsePacketRequest(object)
	if len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}
	req.Raw = raw

	switch req.PacketType {
	case services.PacketTypeMuon:
		packet, err := packets.ParseMuonPacket(object["muon_packet"])
		if err != nil {
			h.log.Warn().Err(err).Str("device", req.Device).Msg("invalid muon packet payload")
			writeDetail(w, http.StatusBadRequest, invalidMuonDetail)
			return
		}
		req.Muon = &packet
	case services.PacketTypeTimeline:
		packet, err := packets.ParseTimelinePacket(object["timeline_packet"])
		if err != nil {
			h.log.Warn().Err(err).Str("device", req.Device).Msg("invalid timeline packet payload")
			writeDetail(w, http.StatusBadRequest, invalidTimelineDetail)
			return
		}
		req.Timeline = &packet
	}

	result, err := h.service.Ingest(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, result)
	case errors.Is(err, iotdb.ErrWrite):
		h.log.Error().Err(err).Str("device", req.Device).Str("packet_type", req.PacketType).Msg("iotdb write failed")
		writeDetail(w, http.StatusServiceUnavailable, failedWriteDetail)
	case errors.Is(err, services.ErrUnsupportedPacketType):
		writeDetail(w, http.StatusBadRequest, "Unsupported packet_type: "+req.PacketType)
	default:
		h.log.Error().Err(err).Str("device", req.Device).Str("packet_type", req.PacketType).Msg("packet processing failed")
		writeDetail(w, http.StatusBadRequest, processingErrorDetail)
	}
}

// parsePacketRequest validates the envelope fields and, for time series
// packets, each record. Errors are keyed by field.
func parsePacketRequest(object map[string]any) (services.PacketRequest, map[string]any) {
	errs := map[string]any{}
	var req services.PacketRequest

	switch device := object["device"].(type) {
	case nil:
		errs["device"] = []string{requiredMessage}
	case string:
		req.Device = strings.TrimSpace(device)
		switch {
		case req.Device == "":
			errs["device"] = []string{"device cannot be blank"}
		case !packets.ValidDevice(req.Device):
			errs["device"] = []string{"device contains invalid characters"}
		}
	default:
		errs["device"] = []string{"Not a valid string."}
	}

	req.PacketType = services.PacketTypeTimeseries
	if rawType, ok := object["packet_type"]; ok && rawType != nil {
		packetType, isString := rawType.(string)
		switch {
		case !isString:
			errs["packet_type"] = []string{"Not a valid string."}
		case packetType != services.PacketTypeTimeseries && packetType != services.PacketTypeMuon && packetType != services.PacketTypeTimeline:
			errs["packet_type"] = []string{fmt.Sprintf("%q is not a valid choice.", packetType)}
		default:
			req.PacketType = packetType
		}
	}

	switch req.PacketType {
	case services.PacketTypeTimeseries:
		records, recordErrs := parseRecords(object["records"])
		if recordErrs != nil {
			errs["records"] = recordErrs
		}
		req.Records = records
	case services.PacketTypeMuon:
		if object["muon_packet"] == nil {
			errs["muon_packet"] = []string{requiredMessage}
		}
	case services.PacketTypeTimeline:
		if object["timeline_packet"] == nil {
			errs["timeline_packet"] = []string{requiredMessage}
		}
	}
	return req, errs
}

func parseRecords(value any) ([]iotdb.Record, any) {
	if value == nil {
		return nil, []string{requiredMessage}
	}
	items, ok := value.([]any)
	if !ok {
		return nil, map[string][]string{
			"non_field_errors": {fmt.Sprintf("Expected a list of items but got type %q.", packets.JSONTypeName(value))},
		}
	}
	if len(items) == 0 {
		return nil, []string{"records must not be empty"}
	}

	records := make([]iotdb.Record, 0, len(items))
	itemErrs := make([]packets.FieldErrors, len(items))
	failed := false
	for i, item := range items {
		record, errs := packets.ParseRecord(item)
		if len(errs) > 0 {
			itemErrs[i] = errs
			failed = true
			continue
		}
		itemErrs[i] = packets.FieldErrors{}
		records = append(records, record)
	}
	if failed {
		return nil, itemErrs
	}
	return records, nil
}
