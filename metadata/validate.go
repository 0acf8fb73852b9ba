package metadata

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"gopkg.in/go-playground/validator.v9"
	en_translations "gopkg.in/go-playground/validator.v9/translations/en"
)

type contributor struct {
	Name              string `json:"name" validate:"required"`
	IncludeInCitation bool   `json:"includeInCitation"`
}

// publishableVersion holds the fields a version needs before it can be
// published.
type publishableVersion struct {
	Name        string        `json:"name" validate:"required,max=150"`
	Description string        `json:"description" validate:"required,max=3000"`
	License     []string      `json:"license" validate:"required,min=1,dive,required"`
	Contributor []contributor `json:"contributor" validate:"required,min=1,dive"`
}

type publishableAsset struct {
	ContentSize    *int64 `json:"contentSize" validate:"required,min=0"`
	EncodingFormat string `json:"encodingFormat" validate:"required"`
}

var (
	validatorOnce sync.Once
	validate      *validator.Validate
	translator    ut.Translator
)

func engine() (*validator.Validate, ut.Translator) {
	validatorOnce.Do(func() {
		english := en.New()
		uni := ut.New(english, english)
		translator, _ = uni.GetTranslator("en")
		validate = validator.New()
		validate.RegisterTagNameFunc(jsonName)
		_ = en_translations.RegisterDefaultTranslations(validate, translator)
	})
	return validate, translator
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// ValidateVersion checks a populated version document. The returned string
// is empty when the document is publishable.
func ValidateVersion(d Document) string {
	return check(d, &publishableVersion{})
}

// ValidateAsset checks an asset metadata document.
func ValidateAsset(d Document) string {
	return check(d, &publishableAsset{})
}

func check(d Document, target interface{}) string {
	b, err := json.Marshal(d)
	if err != nil {
		return err.Error()
	}
	if err := json.Unmarshal(b, target); err != nil {
		return err.Error()
	}
	v, trans := engine()
	err = v.Struct(target)
	if err == nil {
		return ""
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fe.Translate(trans))
	}
	sort.Strings(messages)
	return strings.Join(messages, "; ")
}
