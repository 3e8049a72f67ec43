package auth

var ErrUserNotFoundForTest = errUserNotFound
