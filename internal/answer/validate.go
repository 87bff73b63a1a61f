package answer

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
	translator   ut.Translator
)

func setupValidator() {
	validate = validator.New()
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ = uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate reports every missing question field in one error.
func (q Question) Validate() error {
	validateOnce.Do(setupValidator)

	trimmed := Question{
		Subject:       strings.TrimSpace(q.Subject),
		Level:         strings.TrimSpace(q.Level),
		LearningStyle: strings.TrimSpace(q.LearningStyle),
		Language:      strings.TrimSpace(q.Language),
		Question:      strings.TrimSpace(q.Question),
	}
	return check(trimmed, "invalid question")
}

// Validate rejects a response without an answer; a partial response is
// never composed.
func (r Response) Validate() error {
	validateOnce.Do(setupValidator)
	return check(r, "invalid response")
}

func check(v any, prefix string) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(translator))
	}
	return fmt.Errorf("%s: %s", prefix, strings.Join(msgs, "; "))
}
