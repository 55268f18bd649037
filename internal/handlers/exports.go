package handlers

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"example.com/fincap/backend/internal/auth"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
)

const (
	exportFormatCSV  = "csv"
	exportFormatJSON = "json"
)

// Export выгружает отфильтрованные транзакции в CSV или JSON (параметр format).
func (h *TransactionHandler) Export(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	format := strings.ToLower(strings.TrimSpace(c.QueryParam("format")))
	if format == "" {
		format = exportFormatCSV
	}
	if format != exportFormatCSV && format != exportFormatJSON {
		return badRequest(c, "invalid export format")
	}

	criteria, err := parseCriteria(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	txs, err := h.Store.Filter(c.Request().Context(), userID, criteria)
	if err != nil {
		return ledgerError(c, err)
	}

	filename := "transactions-" + h.Store.AsOf().Format(ledger.DateLayout) + "." + format
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")

	if format == exportFormatJSON {
		return c.JSON(http.StatusOK, TransactionListResponse{Transactions: txs})
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writeTransactionsCSV(writer, txs); err != nil {
		return serverError(c)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return serverError(c)
	}

	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func writeTransactionsCSV(writer *csv.Writer, txs []models.Transaction) error {
	if err := writer.Write(ledger.ExportHeader); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := writer.Write(ledger.ExportRecord(tx)); err != nil {
			return err
		}
	}
	return nil
}
