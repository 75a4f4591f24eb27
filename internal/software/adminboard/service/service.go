package service

import (
	"guardline/internal/ports"
)

// Service encapsulates the admin dashboard service logic and dependencies.
type adminService struct {
	uow     ports.UnitOfWork
	metrics ports.BookingMetricsRepository
}

// NewAdminService creates a new instance of the AdminService with the provided dependencies.
func NewAdminService(uow ports.UnitOfWork, metrics ports.BookingMetricsRepository) ports.AdminService {
	return &adminService{
		uow:     uow,
		metrics: metrics,
	}
}
