// Package seed provides demo data for the development API.
package seed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/handler"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

// Endpoints written by SeedHR.
const (
	Departments      = "/api/hr/departments"
	Employees        = "/api/hr/employees"
	PayrollBatches   = "/api/hr/payroll-batches"
	Payslips         = "/api/hr/payslips"
	LeaveTypes       = "/api/hr/leave-types"
	PayrollVariables = "/api/hr/payroll-variables"
)

const actor = "system"

// SeedHR fills store with a small HR data set: departments, employees, two
// payroll batches with payslips (one left without a batch), leave types for
// two tenants and the payroll variables used by bonus formulas. If any
// department already exists it skips seeding.
func SeedHR(ctx context.Context, store handler.Store, log *zap.Logger) error {
	existing, err := store.List(ctx, Departments)
	if err != nil {
		return fmt.Errorf("checking departments: %w", err)
	}
	if len(existing) > 0 {
		log.Info("hr data already seeded, skipping", zap.Int("departments", len(existing)))
		return nil
	}

	stamp := time.Now().UTC().Format(time.RFC3339)
	s := &seeder{ctx: ctx, store: store, stamp: stamp}

	// Departments
	s.add(Departments, "", record.Record{"id": "dep-fin", "name": "Finance", "code": "FIN"})
	s.add(Departments, "", record.Record{"id": "dep-eng", "name": "Engineering", "code": "ENG"})
	s.add(Departments, "", record.Record{"id": "dep-ops", "name": "Operations", "code": "OPS"})

	// Employees
	employees := []record.Record{
		{"id": "emp-1", "firstName": "Ana", "lastName": "Kovač", "email": "ana.kovac@example.com", "department": ref("dep-fin"), "hireDate": "2019-04-01", "employmentType": "full_time", "active": true, "baseSalary": 5200.0, "iban": "HR1210010051863000160"},
		{"id": "emp-2", "firstName": "Marko", "lastName": "Horvat", "email": "marko.horvat@example.com", "department": ref("dep-eng"), "hireDate": "2020-09-15", "employmentType": "full_time", "active": true, "baseSalary": 6100.0},
		{"id": "emp-3", "firstName": "Ivana", "lastName": "Babić", "email": "ivana.babic@example.com", "department": ref("dep-eng"), "hireDate": "2023-02-01", "employmentType": "contractor", "contractEndDate": "2025-01-31", "active": true, "baseSalary": 4300.0},
		{"id": "emp-4", "firstName": "Luka", "lastName": "Novak", "department": ref("dep-ops"), "hireDate": "2021-06-07", "employmentType": "part_time", "active": false, "baseSalary": 2150.0},
	}
	for _, e := range employees {
		s.add(Employees, "", e)
	}

	// Payroll
	s.add(PayrollBatches, "", record.Record{"id": "batch-2024-02", "name": "February 2024", "periodStart": "2024-02-01", "periodEnd": "2024-02-29"})
	s.add(PayrollBatches, "", record.Record{"id": "batch-2024-03", "name": "March 2024", "periodStart": "2024-03-01", "periodEnd": "2024-03-31"})
	payslips := []record.Record{
		{"id": "ps-1", "employee": ref("emp-1"), "payrollBatch": ref("batch-2024-02"), "grossAmount": 5200.0, "netAmount": 3640.0},
		{"id": "ps-2", "employee": ref("emp-2"), "payrollBatch": ref("batch-2024-02"), "grossAmount": 6100.0, "netAmount": 4270.0},
		{"id": "ps-3", "employee": ref("emp-1"), "payrollBatch": ref("batch-2024-03"), "grossAmount": 5450.0, "netAmount": 3815.0, "formula": "baseSalary * 0.05"},
		{"id": "ps-4", "employee": ref("emp-3"), "grossAmount": 4300.0, "netAmount": 3010.0},
	}
	for _, p := range payslips {
		s.add(Payslips, "", p)
	}

	// Leave types, scoped per tenant
	s.add(LeaveTypes, "HQ", record.Record{"id": "lt-hq-annual", "code": "HQ", "name": "Annual leave", "paid": true, "daysPerYear": 25.0})
	s.add(LeaveTypes, "HQ", record.Record{"id": "lt-hq-sick", "code": "HQ", "name": "Sick leave", "paid": true, "daysPerYear": 10.0})
	s.add(LeaveTypes, "BR", record.Record{"id": "lt-br-annual", "code": "BR", "name": "Annual leave", "paid": true, "daysPerYear": 20.0})
	s.add(LeaveTypes, "BR", record.Record{"id": "lt-br-unpaid", "code": "BR", "name": "Unpaid leave", "paid": false, "daysPerYear": 30.0})

	for _, name := range []string{"baseSalary", "overtimeHours", "hourlyRate", "bonusRate"} {
		s.add(PayrollVariables, "", record.Record{"id": "var-" + name, "name": name})
	}

	if s.err != nil {
		return s.err
	}
	log.Info("hr data seeded", zap.Int("records", s.n))
	return nil
}

func ref(id string) map[string]any {
	return map[string]any{"id": id}
}

// seeder stops at the first failed insert.
type seeder struct {
	ctx   context.Context
	store handler.Store
	stamp string
	n     int
	err   error
}

func (s *seeder) add(endpoint, tenant string, data record.Record) {
	if s.err != nil {
		return
	}
	data[meta.FieldCreatedAt] = s.stamp
	data[meta.FieldUpdatedAt] = s.stamp
	data[meta.FieldCreatedBy] = actor
	data[meta.FieldUpdatedBy] = actor
	doc := handler.Document{Endpoint: endpoint, ID: data.ID(), Tenant: tenant, Data: data}
	if err := s.store.Insert(s.ctx, doc); err != nil {
		s.err = fmt.Errorf("seeding %s/%s: %w", endpoint, doc.ID, err)
		return
	}
	s.n++
}
