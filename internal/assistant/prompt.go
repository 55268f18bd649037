package assistant

import (
	"fmt"
	"strings"
	"time"

	"example.com/fincap/backend/internal/ai"
	"example.com/fincap/backend/internal/analytics"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
	"example.com/fincap/backend/internal/money"
)

const (
	createTransactionTool = "createTransaction"
	promptRecentLimit     = 15
	welcomeMessageID      = "welcome"
)

var spanishMonths = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

func createTransactionDeclaration(asOf time.Time) ai.ToolDeclaration {
	return ai.ToolDeclaration{
		Name:        createTransactionTool,
		Description: "Creates a new financial record (income or expense) in the database. Use this when the user explicitly asks to save, add, or register a transaction.",
		Parameters: []ai.ToolParameter{
			{Name: "description", Type: ai.ParameterString, Description: "The description of the transaction (e.g., 'Office Rent', 'Client Payment').", Required: true},
			{Name: "amount", Type: ai.ParameterNumber, Description: "The numeric amount of the transaction.", Required: true},
			{Name: "type", Type: ai.ParameterString, Enum: []string{string(models.TransactionTypeIncome), string(models.TransactionTypeExpense)}, Description: "Whether it is an income or an expense.", Required: true},
			{Name: "category", Type: ai.ParameterString, Description: "Category name of the transaction (e.g., 'Marketing', 'Payroll', 'Sales')."},
			{Name: "date", Type: ai.ParameterString, Description: fmt.Sprintf("Date of the transaction in YYYY-MM-DD format. If not specified, use today's date (%s).", asOf.Format(ledger.DateLayout))},
		},
	}
}

func buildSystemInstruction(snapshot analytics.Snapshot, lang models.Language) string {
	locale := lang.Locale()
	asOf := snapshot.AsOf

	var recent strings.Builder
	for i, tx := range snapshot.RecentTransactions {
		if i == promptRecentLimit {
			break
		}
		fmt.Fprintf(&recent, "- %s: %s (%s) %s [%s]\n",
			tx.Date.Format(ledger.DateLayout), tx.Description, tx.Type, money.Format(tx.Amount, locale), tx.CategoryName())
	}

	var upcoming strings.Builder
	for _, tx := range snapshot.UpcomingExpenses {
		due := tx.Date
		if tx.NextDueDate != nil {
			due = *tx.NextDueDate
		}
		fmt.Fprintf(&upcoming, "- %s: %s (%s)\n", due.Format(ledger.DateLayout), tx.Description, money.Format(tx.Amount, locale))
	}

	langInstruction := "RESPOND IN ENGLISH."
	if lang == models.LanguageSpanish {
		langInstruction = "RESPOND ONLY IN SPANISH (Mexican Spanish context)."
	}

	longDate := asOf.Format("January 2, 2006")
	shortDate := asOf.Format("Jan 2, 2006")

	return fmt.Sprintf(`%s
You are FinCap AI, an expert CFO assistant for the startup "%s".
User: %s (%s).

IMPORTANT DATE CONTEXT:
Today is **%s**.
All analysis must be relative to this date.

DATABASE CONTEXT (as of %s):
- Cash on Hand: %s
- Monthly Burn: %s
- Runway: %.1f months
- Safe to Spend: %s

UPCOMING BILLS:
%s
RECENT TRANSACTIONS (Database):
%s
GOALS:
1. Analyze spending patterns based on the transactions provided above.
2. If the user asks about a document they uploaded, refer to the transactions extracted from it (see the recent transactions list).
3. Give strategic advice on how to extend runway.
4. ACTIVE DATABASE MODIFICATION: if the user asks to "add", "register", "create", or "save" an income or expense, you MUST use the '%s' tool immediately. Do not ask for confirmation if the user provided description and amount.`,
		langInstruction,
		snapshot.CompanyName,
		snapshot.User.DisplayName, snapshot.User.Email,
		longDate,
		shortDate,
		money.Format(snapshot.CurrentCash, locale),
		money.Format(snapshot.MonthlyBurn, locale),
		snapshot.RunwayMonths,
		money.Format(snapshot.SafeToSpend, locale),
		upcoming.String(),
		recent.String(),
		createTransactionTool,
	)
}

func welcomeText(lang models.Language, displayName string, asOf time.Time) string {
	if lang == models.LanguageSpanish {
		date := fmt.Sprintf("%d de %s de %d", asOf.Day(), spanishMonths[asOf.Month()-1], asOf.Year())
		return fmt.Sprintf("Hola **%s**! Soy **FinCap AI**.\n\nHoy es **%s**. Puedo ayudarte con:\n- Análisis de flujo de caja\n- Predicciones de riesgo\n- Crear registros de ingresos y gastos", displayName, date)
	}
	return fmt.Sprintf("Hello **%s**! I'm **FinCap AI**.\n\nToday is **%s**. I can help you with:\n- Cash flow analysis\n- Risk predictions\n- Creating income/expense records", displayName, asOf.Format("January 2, 2006"))
}

func failureText(lang models.Language) string {
	if lang == models.LanguageSpanish {
		return "Error conectando con el motor financiero."
	}
	return "Error connecting to financial engine."
}
