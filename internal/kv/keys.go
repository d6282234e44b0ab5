package kv

// Storage keys. Collections live under fixed keys; per-user and
// per-reminder records are suffixed with the owning id.
const (
	KeyUsers        = "et_users"
	KeyCurrentUser  = "et_currentUser"
	KeyCategories   = "et_categories"
	KeyTransactions = "et_transactions"

	PrefixNotifications        = "notifications_"
	PrefixReminders            = "reminders_"
	PrefixBalanceReminder      = "balance_reminder_"
	PrefixSpendingLimitNotifed = "spending_limit_notified_"
	PrefixDailyReminder        = "daily_reminder_"
	PrefixBalanceAlertState    = "balance_alert_state_"
)

func NotificationsKey(userID string) string {
	return PrefixNotifications + userID
}

func RemindersKey(userID string) string {
	return PrefixReminders + userID
}

// BalanceReminderKey holds the single balance alert of a user. Signed-out
// sessions share the "anon" slot.
func BalanceReminderKey(userID string) string {
	if userID == "" {
		userID = "anon"
	}
	return PrefixBalanceReminder + userID
}

func BalanceAlertStateKey(userID string) string {
	return PrefixBalanceAlertState + userID
}

func SpendingLimitNotifiedKey(reminderID string) string {
	return PrefixSpendingLimitNotifed + reminderID
}

func DailyReminderLastKey(reminderID string) string {
	return PrefixDailyReminder + reminderID + "_last"
}
