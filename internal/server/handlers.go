package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kyleking/sqlnow/internal/catalog"
	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/results"
	"github.com/kyleking/sqlnow/internal/sqlgen"
)

type handlers struct {
	backend Backend
}

// Requests bind from JSON bodies or form posts.

type tableRequest struct {
	Name string `json:"name" form:"name"`
}

type queryRequest struct {
	SQL          string `json:"sql"           form:"sql"`
	DisplayLimit int    `json:"display_limit" form:"display_limit"`
}

type outputRequest struct {
	SQL    string `json:"sql"    form:"sql"`
	Format string `json:"format" form:"format"`
	Limit  int    `json:"limit"  form:"limit"`
}

type tablesResponse struct {
	Tables   []catalog.TableDescriptor `json:"tables"`
	Sections []string                  `json:"sections"`
}

type tableResponse struct {
	Table            catalog.TableDescriptor `json:"table"`
	SelectStar       string                  `json:"select_star"`
	SelectFields     string                  `json:"select_fields"`
	SelectFieldsType string                  `json:"select_fields_type"`
}

type queryResponse struct {
	Error     string             `json:"error,omitempty"`
	TableData *results.TableData `json:"table_data,omitempty"`
}

type errorResponse struct {
	Error       string           `json:"error"`
	Type        errors.ErrorType `json:"type"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

func fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)

	c.JSON(status, errorResponse{
		Error:       errors.Human(err),
		Type:        errors.GetType(err),
		Suggestions: errors.Suggestions(err),
	})
}

func (h *handlers) tables(c *gin.Context) {
	c.JSON(http.StatusOK, tablesResponse{
		Tables:   h.backend.Catalog(),
		Sections: h.backend.Sections(),
	})
}

func (h *handlers) table(c *gin.Context) {
	var req tableRequest
	if err := c.ShouldBind(&req); err != nil || req.Name == "" {
		fail(c, http.StatusBadRequest, errors.New(errors.ErrTypeValidation, "name is required"))
		return
	}

	table, err := h.backend.Table(req.Name)
	if err != nil {
		fail(c, http.StatusNotFound, err)
		return
	}

	c.JSON(http.StatusOK, tableResponse{
		Table:            table,
		SelectStar:       sqlgen.Generate(table, sqlgen.SelectStar),
		SelectFields:     sqlgen.Generate(table, sqlgen.SelectFields),
		SelectFieldsType: sqlgen.Generate(table, sqlgen.SelectFieldsTyped),
	})
}

// query reports SQL failures in the payload so the caller can show them
// next to the query
func (h *handlers) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBind(&req); err != nil || req.SQL == "" {
		fail(c, http.StatusBadRequest, errors.New(errors.ErrTypeValidation, "sql is required"))
		return
	}

	data, err := h.backend.RunQuery(c.Request.Context(), req.SQL, req.DisplayLimit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusOK, queryResponse{Error: errors.Human(err)})

		return
	}

	c.JSON(http.StatusOK, queryResponse{TableData: data})
}

// outputs streams a download. Once the first record is written a failure can
// only truncate the body.
func (h *handlers) outputs(c *gin.Context) {
	req := outputRequest{Format: "csv", Limit: -1}
	if err := c.ShouldBind(&req); err != nil || req.SQL == "" {
		fail(c, http.StatusBadRequest, errors.New(errors.ErrTypeValidation, "sql is required"))
		return
	}

	enc, err := results.ParseEncoding(req.Format)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", enc.ContentType())
	header.Set("Content-Disposition", "attachment; filename="+enc.Filename())

	err = h.backend.Stream(c.Request.Context(), c.Writer, req.SQL, enc, req.Limit)
	if err == nil {
		return
	}

	if c.Writer.Written() {
		_ = c.Error(err)
		return
	}

	header.Del("Content-Type")
	header.Del("Content-Disposition")
	fail(c, http.StatusBadRequest, err)
}
