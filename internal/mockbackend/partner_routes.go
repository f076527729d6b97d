package mockbackend

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsContextKey = "auth_claims"

var mobileNumberPattern = regexp.MustCompile(`^3[0-9]{9}$`)

var errMissingBearer = errors.New("mockbackend.partner.missing_bearer")

func (backend *Backend) bearerClaims(contextGin *gin.Context) (*sessionClaims, error) {
	header := contextGin.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errMissingBearer
	}
	return backend.parseSessionToken(strings.TrimPrefix(header, "Bearer "))
}

// requireSession validates the session bearer and injects its claims.
func (backend *Backend) requireSession() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		claims, claimsErr := backend.bearerClaims(contextGin)
		if claimsErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}
		contextGin.Set(claimsContextKey, claims)
		contextGin.Next()
	}
}

func (backend *Backend) sessionClaims(contextGin *gin.Context) *sessionClaims {
	value, found := contextGin.Get(claimsContextKey)
	if !found {
		return nil
	}
	claims, ok := value.(*sessionClaims)
	if !ok {
		return nil
	}
	return claims
}

func (backend *Backend) handlePartnerAuth(contextGin *gin.Context) {
	claims := backend.sessionClaims(contextGin)
	if claims == nil {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	token := backend.issuePartnerToken(claims.Subject)
	backend.logger.Debug("partner token issued",
		zap.String("code", "mockbackend.partner.token_issued"),
		zap.String("user_id", claims.Subject),
	)
	contextGin.JSON(http.StatusOK, gin.H{"token": token})
}

func (backend *Backend) handleSuppliers(contextGin *gin.Context) {
	// The supplier catalog is guarded by the partner token, sent verbatim.
	if !backend.validPartnerToken(contextGin.GetHeader("Authorization")) {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid partner token"})
		return
	}
	contextGin.JSON(http.StatusOK, backend.suppliers)
}

type rechargeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Amount      int    `json:"amount"`
	SupplierID  string `json:"supplierId"`
}

func (backend *Backend) handleCreateRecharge(contextGin *gin.Context) {
	claims := backend.sessionClaims(contextGin)
	if claims == nil {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	var inbound rechargeRequest
	if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	var validationMessages []string
	if !mobileNumberPattern.MatchString(inbound.PhoneNumber) {
		validationMessages = append(validationMessages, "Número inválido")
	}
	if inbound.Amount < 1000 || inbound.Amount > 100000 {
		validationMessages = append(validationMessages, "El monto debe estar entre $1.000 y $100.000 COP")
	}
	supplier, supplierFound := backend.supplierByID(inbound.SupplierID)
	if !supplierFound {
		validationMessages = append(validationMessages, "Operador desconocido")
	}
	if len(validationMessages) > 0 {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "Datos inválidos",
			"errors":  validationMessages,
		})
		return
	}

	record := transactionRecord{
		ID:           fmt.Sprintf("rec-%06d", backend.nextSequence()),
		PhoneNumber:  inbound.PhoneNumber,
		Amount:       inbound.Amount,
		Status:       "COMPLETED",
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		CreatedAt:    backend.clock.Now(),
		Ticket:       "TKT-" + randomOpaque(6),
	}

	backend.mutex.Lock()
	backend.transactions[claims.Subject] = append([]transactionRecord{record}, backend.transactions[claims.Subject]...)
	backend.mutex.Unlock()

	backend.logger.Info("mock recharge accepted",
		zap.String("code", "mockbackend.partner.recharge"),
		zap.String("user_id", claims.Subject),
		zap.String("ticket", record.Ticket),
	)
	contextGin.JSON(http.StatusCreated, record)
}

func (backend *Backend) handleTransactions(contextGin *gin.Context) {
	claims := backend.sessionClaims(contextGin)
	if claims == nil {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	contextGin.JSON(http.StatusOK, backend.userTransactions(claims.Subject, ""))
}

func (backend *Backend) handleTransactionsByPhone(contextGin *gin.Context) {
	claims := backend.sessionClaims(contextGin)
	if claims == nil {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	contextGin.JSON(http.StatusOK, backend.userTransactions(claims.Subject, contextGin.Param("phoneNumber")))
}

// userTransactions returns the newest-first history, optionally narrowed to
// one phone number.
func (backend *Backend) userTransactions(userID string, phoneNumber string) []transactionRecord {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	records := backend.transactions[userID]
	result := make([]transactionRecord, 0, len(records))
	for _, record := range records {
		if phoneNumber != "" && record.PhoneNumber != phoneNumber {
			continue
		}
		result = append(result, record)
	}
	return result
}
