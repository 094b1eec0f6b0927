package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"anchorproto/anchord/internal/chain"
	"anchorproto/anchord/internal/index"
	"anchorproto/anchord/internal/protocol"
)

// Server exposes the engine's read API to UI collaborators. It only
// queries; decoding and resolution never happen here.
type Server struct {
	ix *index.Indexer
}

// NewServer returns a Server over an indexer.
func NewServer(ix *index.Indexer) *Server {
	return &Server{ix: ix}
}

// RegisterHandlers registers all read endpoints on the given router.
func (s *Server) RegisterHandlers(e *echo.Echo) {
	apiGroup := e.Group("/api/v1")

	apiGroup.GET("/messages", s.searchMessages)
	apiGroup.GET("/messages/:txid/:vout", s.getMessage)
	apiGroup.GET("/threads/:txid/:vout", s.getThread)
	apiGroup.GET("/stats", s.getStats)
	apiGroup.GET("/kinds", s.getKinds)
}

type errorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a message with its anchors' resolution states and,
// when the kind is registered, the typed body.
type MessageResponse struct {
	Ref         index.MessageRef     `json:"ref"`
	Kind        uint8                `json:"kind"`
	KindName    string               `json:"kind_name"`
	Carrier     string               `json:"carrier"`
	BlockHeight int64                `json:"block_height"`
	BlockTime   int64                `json:"block_time"`
	Anchors     []index.AnchorState  `json:"anchors"`
	Body        protocol.KindPayload `json:"body,omitempty"`
	RawBody     []byte               `json:"raw_body,omitempty"`
}

func (s *Server) buildMessageResponse(msg *index.StoredMessage, anchors []index.AnchorState) MessageResponse {
	resp := MessageResponse{
		Ref:         msg.Ref,
		Kind:        msg.Kind,
		KindName:    protocol.KindName(msg.Kind),
		Carrier:     string(msg.Carrier),
		BlockHeight: msg.BlockHeight,
		BlockTime:   msg.BlockTime,
		Anchors:     anchors,
	}
	if codec, ok := s.ix.Registry().Lookup(msg.Kind); ok {
		if payload, err := codec.Parse(msg.Body); err == nil {
			resp.Body = payload
			return resp
		}
	}
	// Unknown kind, or a registered kind whose body fails its own codec:
	// fall back to the raw bytes.
	resp.RawBody = msg.Body
	return resp
}

func parseRef(c echo.Context) (index.MessageRef, error) {
	txid, err := chain.NormalizeTxid(c.Param("txid"))
	if err != nil {
		return index.MessageRef{}, err
	}
	vout, err := strconv.ParseUint(c.Param("vout"), 10, 8)
	if err != nil {
		return index.MessageRef{}, errors.New("vout must be 0..255")
	}
	return index.MessageRef{Txid: txid, Vout: uint8(vout)}, nil
}

func (s *Server) getMessage(c echo.Context) error {
	ref, err := parseRef(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	msg, anchors, err := s.ix.GetMessage(ref)
	if errors.Is(err, index.ErrMessageNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	if err != nil {
		log.Error().Err(err).Str("ref", ref.String()).Msg("message lookup failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}

	return c.JSON(http.StatusOK, s.buildMessageResponse(msg, anchors))
}

func (s *Server) searchMessages(c echo.Context) error {
	prefix := c.QueryParam("prefix")
	if prefix == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "prefix query parameter is required"})
	}

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be 1..1000"})
		}
		limit = n
	}

	msgs, err := s.ix.FindByTxidPrefix(prefix, limit)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	resps := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		resps = append(resps, s.buildMessageResponse(&msgs[i], nil))
	}
	return c.JSON(http.StatusOK, resps)
}

func (s *Server) getThread(c echo.Context) error {
	ref, err := parseRef(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		}
	}

	entries, err := s.ix.GetThread(ref, limit)
	if errors.Is(err, index.ErrMessageNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	if err != nil {
		log.Error().Err(err).Str("ref", ref.String()).Msg("thread traversal failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
	if entries == nil {
		entries = []index.ThreadEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) getStats(c echo.Context) error {
	stats, err := s.ix.Stats()
	if err != nil {
		log.Error().Err(err).Msg("stats snapshot failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
	return c.JSON(http.StatusOK, stats)
}

type kindInfo struct {
	Kind uint8  `json:"kind"`
	Name string `json:"name"`
}

func (s *Server) getKinds(c echo.Context) error {
	kinds := s.ix.Registry().Kinds()
	infos := make([]kindInfo, 0, len(kinds))
	for _, k := range kinds {
		infos = append(infos, kindInfo{Kind: k, Name: protocol.KindName(k)})
	}
	return c.JSON(http.StatusOK, infos)
}
