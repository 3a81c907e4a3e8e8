package i18n

import "strings"

var translations = map[string]string{
	"invalid request":                          "درخواست نامعتبر است",
	"failed to generate token":                 "خطا در تولید توکن",
	"missing authorization token":              "توکن احراز هویت ارسال نشده است",
	"invalid token":                            "توکن نامعتبر است",
	"failed to validate user":                  "خطا در اعتبارسنجی کاربر",
	"user not found":                           "کاربر یافت نشد",
	"unauthorized":                             "دسترسی غیرمجاز",
	"admin access required":                    "این بخش فقط برای مدیر در دسترس است",
	"invalid role":                             "نقش نامعتبر است",
	"invalid user id":                          "شناسه کاربر نامعتبر است",
	"conversation not found":                   "مکالمه یافت نشد",
	"mentor not found":                         "منتور یافت نشد",
	"not a participant":                        "شما عضو این مکالمه نیستید",
	"cannot create conversation with yourself": "نمی توانید با خودتان مکالمه ایجاد کنید",
	"invalid message kind":                     "نوع پیام نامعتبر است",
	"message text is required":                 "متن پیام الزامی است",
	"media url is required for media messages": "برای پیام رسانه ای آدرس فایل الزامی است",
	"text messages cannot carry media":         "پیام متنی نمی تواند فایل داشته باشد",
	"reply target not found":                   "پیامی که به آن پاسخ داده اید یافت نشد",
	"invalid cursor":                           "نشانگر صفحه نامعتبر است",
	"file is required":                         "فایل الزامی است",
	"file too large":                           "حجم فایل بیش از حد مجاز است",
	"file type not allowed":                    "نوع فایل مجاز نیست",
	"invalid media kind":                       "نوع رسانه نامعتبر است",
	"upload failed":                            "آپلود فایل ناموفق بود",
	"websocket upgrade failed":                 "خطا در برقراری اتصال وب سوکت",
	"rate limiter error":                       "خطا در محدودسازی درخواست ها",
	"rate limit exceeded":                      "تعداد درخواست ها بیش از حد مجاز است",
	"push notifications are not configured":    "اعلان ها پیکربندی نشده اند",
	"internal server error":                    "خطای داخلی سرور",
	"not found":                                "یافت نشد",
	"media device access denied":               "دسترسی به میکروفون یا دوربین داده نشد",
	"another capture is already active":        "ضبط دیگری در حال انجام است",
	"no active capture":                        "ضبطی در حال انجام نیست",
	"no pending media to upload":               "فایلی برای آپلود وجود ندارد",
	"a send is already in progress":            "پیام قبلی هنوز در حال ارسال است",
	"no conversation is open":                  "هیچ مکالمه ای باز نیست",
	"username must be between 3 and 32 characters": "نام کاربری باید بین ۳ تا ۳۲ کاراکتر باشد",
	"username can only contain letters, numbers, and underscores": "نام کاربری فقط می تواند شامل حروف، اعداد و زیرخط باشد",
	"password must be at least 6 characters":                      "رمز عبور باید حداقل ۶ کاراکتر باشد",
	"username already exists":                                     "این نام کاربری قبلا ثبت شده است",
	"invalid username or password":                                "نام کاربری یا رمز عبور اشتباه است",
}

var prefixTranslations = map[string]string{
	"failed to hash password:":   "خطا در پردازش رمز عبور",
	"failed to register user:":   "خطا در ثبت نام کاربر",
	"failed to get user id:":     "خطا در دریافت شناسه کاربر",
	"failed to query user:":      "خطا در دریافت اطلاعات کاربر",
	"failed to generate token:":  "خطا در تولید توکن",
	"failed to sign token:":      "خطا در امضای توکن",
	"failed to parse token:":     "توکن نامعتبر است",
	"unexpected signing method:": "روش امضای توکن نامعتبر است",
}

func Translate(message string) string {
	if translated, ok := translations[message]; ok {
		return translated
	}
	for prefix, translated := range prefixTranslations {
		if strings.HasPrefix(message, prefix) {
			return translated
		}
	}
	return message
}
