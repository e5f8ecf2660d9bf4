package apperr

const (
	MsgTenantNotFound      = "University not found or inactive"
	MsgTenantRequired      = "University context is required"
	MsgTenantMissing       = "University not found"
	MsgNotAuthorized       = "Not authorized to access this route"
	MsgInvalidToken        = "Invalid token"
	MsgTokenExpired        = "Token expired"
	MsgInvalidRefreshToken = "Invalid refresh token"
	MsgRefreshRequired     = "Refresh token is required"
	MsgUserNotFound        = "User not found"
	MsgUserDeactivated     = "User account is deactivated"
	MsgTenantDeactivated   = "University is deactivated"
	MsgInvalidLogin        = "Invalid email or password"
	MsgForbidden           = "Forbidden"
	MsgAccessDenied        = "Access denied"
	MsgWrongUniversity     = "Access denied: User does not belong to this university"
	MsgCourseOtherTenant   = "Access denied: Course belongs to different university"
	MsgNotEnrolled         = "Access denied: Not enrolled in this course"
	MsgCourseIDRequired    = "Course ID is required"
	MsgCourseNotFound      = "Course not found"
	MsgNotFound            = "Not Found"
	MsgValidationFailed    = "Validation failed"
	MsgInvalidBody         = "Invalid request body"
	MsgAlreadyExists       = "Resource already exists"
	MsgUserExists          = "User already exists with this email"
	MsgInvalidReference    = "Invalid reference to related resource"
	MsgFileTooLarge        = "File too large"
	MsgTooManyFiles        = "Too many files"
	MsgUnexpectedFile      = "Unexpected file field"
	MsgRateLimited         = "Too many requests from this IP, please try again later."
	MsgServerError         = "Server Error"

	MsgRegistered        = "User registered successfully"
	MsgLoggedIn          = "Login successful"
	MsgRefreshed         = "Token refreshed successfully"
	MsgLoggedOut         = "Logout successful"
	MsgTenantCreated     = "University created successfully"
	MsgTenantUpdated     = "University updated successfully"
	MsgNotImplementedYet = "Route to be implemented"
)

var arabicMessages = map[string]string{
	MsgTenantNotFound:      "الجامعة غير موجودة أو غير نشطة",
	MsgTenantRequired:      "سياق الجامعة مطلوب",
	MsgTenantMissing:       "الجامعة غير موجودة",
	MsgNotAuthorized:       "غير مخول للوصول إلى هذا المسار",
	MsgInvalidToken:        "رمز غير صالح",
	MsgTokenExpired:        "انتهت صلاحية الرمز",
	MsgInvalidRefreshToken: "رمز تحديث غير صالح",
	MsgRefreshRequired:     "رمز التحديث مطلوب",
	MsgUserNotFound:        "المستخدم غير موجود",
	MsgUserDeactivated:     "حساب المستخدم معطل",
	MsgTenantDeactivated:   "الجامعة معطلة",
	MsgInvalidLogin:        "بريد إلكتروني أو كلمة مرور غير صحيحة",
	MsgForbidden:           "محظور",
	MsgAccessDenied:        "الوصول مرفوض",
	MsgWrongUniversity:     "الوصول مرفوض: المستخدم لا ينتمي لهذه الجامعة",
	MsgCourseOtherTenant:   "الوصول مرفوض: الدورة تنتمي لجامعة مختلفة",
	MsgNotEnrolled:         "الوصول مرفوض: غير مسجل في هذه الدورة",
	MsgCourseIDRequired:    "معرف الدورة مطلوب",
	MsgCourseNotFound:      "الدورة غير موجودة",
	MsgNotFound:            "غير موجود",
	MsgValidationFailed:    "فشل التحقق",
	MsgInvalidBody:         "نص الطلب غير صالح",
	MsgAlreadyExists:       "المورد موجود بالفعل",
	MsgUserExists:          "المستخدم موجود بالفعل بهذا البريد الإلكتروني",
	MsgInvalidReference:    "مرجع غير صالح للمورد ذي الصلة",
	MsgFileTooLarge:        "الملف كبير جداً",
	MsgTooManyFiles:        "ملفات كثيرة جداً",
	MsgUnexpectedFile:      "حقل ملف غير متوقع",
	MsgRateLimited:         "طلبات كثيرة جداً من هذا العنوان، يرجى المحاولة لاحقاً.",
	MsgServerError:         "خطأ في الخادم",

	MsgRegistered:        "تم تسجيل المستخدم بنجاح",
	MsgLoggedIn:          "تم تسجيل الدخول بنجاح",
	MsgRefreshed:         "تم تحديث الرمز بنجاح",
	MsgLoggedOut:         "تم تسجيل الخروج بنجاح",
	MsgTenantCreated:     "تم إنشاء الجامعة بنجاح",
	MsgTenantUpdated:     "تم تحديث الجامعة بنجاح",
	MsgNotImplementedYet: "سيتم تنفيذ هذا المسار لاحقاً",
}

// Arabic returns the Arabic rendering of a canonical message, or "".
func Arabic(message string) string {
	return arabicMessages[message]
}
