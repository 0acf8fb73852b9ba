package helper

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"gopkg.in/go-playground/validator.v9"
	en_translations "gopkg.in/go-playground/validator.v9/translations/en"

	"dandi-api/logger"
	"dandi-api/models"
)

// HTTPHelper validates requests and renders errors and pages.
type HTTPHelper struct {
	Validate   *validator.Validate
	Translator ut.Translator
	Log        *logger.Logger
}

// NewHTTPHelper returns a helper whose validation messages name fields by
// their JSON keys.
func NewHTTPHelper(log *logger.Logger) *HTTPHelper {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = en_translations.RegisterDefaultTranslations(validate, trans)

	return &HTTPHelper{Validate: validate, Translator: trans, Log: log}
}

// GetStatusCode maps a service error to an HTTP status.
func (u *HTTPHelper) GetStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var (
		unauthorized *models.ErrorUnauthorized
		denied       *models.ErrorPermissionDenied
		notFound     *models.ErrorNotFound
		notAllowed   *models.ErrorMethodNotAllowed
		conflict     *models.ErrorConflict
		badRequest   *models.ErrorBadRequest
		transition   *models.TransitionError
	)
	switch {
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &denied):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &notAllowed):
		return http.StatusMethodNotAllowed
	case errors.As(err, &conflict), errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &badRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// SendError renders err as {"detail": message}. Internal errors are logged
// and replaced by a generic message.
func (u *HTTPHelper) SendError(c *gin.Context, err error) {
	code := u.GetStatusCode(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		if u.Log != nil {
			u.Log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		}
		message = http.StatusText(code)
	}
	c.AbortWithStatusJSON(code, gin.H{"detail": message})
}

// SendBadRequest reports a malformed request body or query.
func (u *HTTPHelper) SendBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": message})
}

// SendValidationError reports failed struct validation field by field.
func (u *HTTPHelper) SendValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	errorResponse := map[string][]string{}
	errorTranslation := validationErrors.Translate(u.Translator)
	for _, err := range validationErrors {
		errKey := Underscore(err.Field())
		errorResponse[errKey] = append(errorResponse[errKey], errorTranslation[err.Namespace()])
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"detail": "validation failed",
		"errors": errorResponse,
	})
}

// BindJSON decodes the body into req and validates it. Numbers inside
// free-form maps decode as json.Number so metadata integers stay exact. On
// failure the response has been written and false is returned.
func (u *HTTPHelper) BindJSON(c *gin.Context, req interface{}) bool {
	if c.Request.Body == nil {
		u.SendBadRequest(c, "request body required")
		return false
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(req); err != nil {
		u.SendBadRequest(c, err.Error())
		return false
	}
	if err := u.Validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			u.SendValidationError(c, verrs)
		} else {
			u.SendBadRequest(c, err.Error())
		}
		return false
	}
	return true
}

// GetPagingUrl is the current URL with page and page_size replaced.
func (u *HTTPHelper) GetPagingUrl(c *gin.Context, page, pageSize int) string {
	r := c.Request
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	query := url.Values{}
	for k, v := range r.URL.Query() {
		query[k] = v
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	return scheme + "://" + r.Host + r.URL.Path + "?" + query.Encode()
}

// GeneratePaging wraps one page of results in the list envelope.
func GeneratePaging[T any](u *HTTPHelper, c *gin.Context, params models.ListParams, total int64, results []T) models.Page[T] {
	page := models.Page[T]{Count: total, Results: results}
	if page.Results == nil {
		page.Results = []T{}
	}
	if int64(params.Page*params.PageSize) < total {
		next := u.GetPagingUrl(c, params.Page+1, params.PageSize)
		page.Next = &next
	}
	if params.Page > 1 {
		prev := u.GetPagingUrl(c, params.Page-1, params.PageSize)
		page.Previous = &prev
	}
	return page
}

// Underscore converts a camelCase name to snake_case.
func Underscore(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
