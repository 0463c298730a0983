// Package i18n holds the English and Urdu strings shown to users.
package i18n

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const LangCookie = "lang"

// Message keys
const (
	MissingRequiredFields  = "error.missing_required_fields"
	RequiredFieldsMissing  = "error.required_fields_missing"
	UnableToSave           = "error.unable_to_save"
	UnitCodeLocked         = "error.unit_code_locked"
	NotFound               = "error.not_found"
	TranslationUnavailable = "error.translation_unavailable"
	ApprovalDecided        = "error.approval_already_decided"
	InvalidNumber          = "error.invalid_number"
	InvalidCSRF            = "error.invalid_csrf"
	MissingCSRF            = "error.missing_csrf"
	ApprovalSubmitted      = "notice.approval_submitted"
	Saved                  = "notice.saved"
	Deleted                = "notice.deleted"
	StatusChanged          = "notice.status_changed"
	ApprovalMailSubject    = "mail.approval_subject"
	ApprovalMailIntro      = "mail.approval_intro"
)

var (
	English = language.English
	Urdu    = language.Urdu

	matcher = language.NewMatcher([]language.Tag{English, Urdu})
	cat     = catalog.NewBuilder(catalog.Fallback(English))
)

var messages = map[string][2]string{
	MissingRequiredFields:  {"missing required fields", "ضروری معلومات موجود نہیں"},
	RequiredFieldsMissing:  {"required fields missing", "ضروری خانے خالی ہیں"},
	UnableToSave:           {"unable to save", "محفوظ نہیں ہو سکا"},
	UnitCodeLocked:         {"unit code locked", "یونٹ کوڈ مقفل ہے"},
	NotFound:               {"not found", "ریکارڈ نہیں ملا"},
	TranslationUnavailable: {"translation service unavailable", "ترجمہ سروس دستیاب نہیں"},
	ApprovalDecided:        {"approval request already decided", "منظوری کی درخواست پر فیصلہ ہو چکا ہے"},
	InvalidNumber:          {"invalid number", "غلط عدد"},
	InvalidCSRF:            {"invalid form token", "فارم ٹوکن درست نہیں"},
	MissingCSRF:            {"missing form token", "فارم ٹوکن موجود نہیں"},
	ApprovalSubmitted:      {"approval submitted", "منظوری کے لیے بھیج دیا گیا"},
	Saved:                  {"saved", "محفوظ ہو گیا"},
	Deleted:                {"deleted", "حذف ہو گیا"},
	StatusChanged:          {"status changed", "حالت تبدیل ہو گئی"},
	ApprovalMailSubject:    {"Approval pending: %s %s", "منظوری زیر التواء: %s %s"},
	ApprovalMailIntro:      {"A change is waiting for your approval.", "ایک تبدیلی آپ کی منظوری کی منتظر ہے۔"},
}

func init() {
	for key, pair := range messages {
		cat.SetString(English, key, pair[0])
		cat.SetString(Urdu, key, pair[1])
	}
}

// T message for key in lang; unknown keys are returned verbatim
func T(lang language.Tag, key string, args ...interface{}) string {
	return message.NewPrinter(lang, message.Catalog(cat)).Sprintf(key, args...)
}

// Both "english / urdu"
func Both(key string, args ...interface{}) string {
	return T(English, key, args...) + " / " + T(Urdu, key, args...)
}

// FromRequest lang cookie first, then Accept-Language, else English
func FromRequest(r *http.Request) language.Tag {
	var prefs []language.Tag
	if ck, err := r.Cookie(LangCookie); err == nil && ck.Value != "" {
		if tag, err := language.Parse(ck.Value); err == nil {
			prefs = append(prefs, tag)
		}
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil {
			prefs = append(prefs, tags...)
		}
	}
	if len(prefs) == 0 {
		return English
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return English
	}
	return []language.Tag{English, Urdu}[idx]
}
