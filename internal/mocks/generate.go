// Package mocks contains gomock doubles for storage interfaces.
package mocks

//go:generate go run go.uber.org/mock/mockgen -source=../credential/store.go -destination=mock_store.go -package=mocks
//go:generate go run go.uber.org/mock/mockgen -source=../auth/nonce.go -destination=mock_nonce.go -package=mocks
