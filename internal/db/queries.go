package db

const jobColumns = `seq, id, restaurant_id, job_type, status, content, printer_name, order_ref, payment_ref,
	restaurant_name, order_number, created_at, claimed_at, printed_at, error_message, retry_count, printed_by_client`

const (
	InsertJob = `
		INSERT INTO print_jobs (id, restaurant_id, job_type, status, content, printer_name, order_ref, payment_ref,
			restaurant_name, order_number, created_at)
		VALUES (?, ?, ?, 'pending', ?, ?, ?, ?, ?, ?, ?)
	`

	GetJob = `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = ? AND restaurant_id = ?`

	ListPendingJobs = `
		SELECT ` + jobColumns + ` FROM print_jobs
		WHERE restaurant_id = ? AND status = 'pending'
		ORDER BY created_at ASC, seq ASC
	`

	ListStaleJobs = `
		SELECT ` + jobColumns + ` FROM print_jobs
		WHERE (status = 'pending' AND created_at < ?)
		   OR (status = 'printing' AND claimed_at < ?)
		ORDER BY created_at ASC, seq ASC
		LIMIT ?
	`

	// Status writes are guarded on the current status; RowsAffected decides
	// whether the transition happened.
	MarkJobPrinting = `
		UPDATE print_jobs SET status = 'printing', printed_by_client = ?, claimed_at = ?
		WHERE id = ? AND restaurant_id = ? AND status = 'pending'
	`

	MarkJobCompleted = `
		UPDATE print_jobs SET status = 'completed', printed_at = ?
		WHERE id = ? AND restaurant_id = ? AND status = 'printing'
	`

	MarkJobFailed = `
		UPDATE print_jobs SET status = 'failed', error_message = ?, retry_count = retry_count + 1
		WHERE id = ? AND restaurant_id = ? AND status IN ('pending', 'printing')
	`

	MarkJobPending = `
		UPDATE print_jobs SET status = 'pending', error_message = '', claimed_at = NULL
		WHERE id = ? AND restaurant_id = ? AND status = 'failed'
	`

	CountJobsByStatus = `
		SELECT status, COUNT(*) FROM print_jobs WHERE restaurant_id = ? GROUP BY status
	`

	CountPendingJobsByType = `
		SELECT job_type, COUNT(*) FROM print_jobs
		WHERE restaurant_id = ? AND status = 'pending'
		GROUP BY job_type
	`
)

const (
	GetRestaurant = `SELECT id, name, parent_id FROM restaurants WHERE id = ?`

	UpsertRestaurant = `
		INSERT INTO restaurants (id, name, parent_id) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id
	`

	profileColumns = `restaurant_id, auto_print_kitchen, auto_print_bar, auto_print_buffet, auto_print_service,
		auto_print_receipt, auto_print_bill, kitchen_printer_name, bar_printer_name, buffet_printer_name,
		service_printer_name, receipt_printer_name, bill_printer_name, tax_percent`

	GetProfile = `SELECT ` + profileColumns + ` FROM print_profiles WHERE restaurant_id = ?`

	UpsertProfile = `
		INSERT INTO print_profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (restaurant_id) DO UPDATE SET
			auto_print_kitchen = excluded.auto_print_kitchen,
			auto_print_bar = excluded.auto_print_bar,
			auto_print_buffet = excluded.auto_print_buffet,
			auto_print_service = excluded.auto_print_service,
			auto_print_receipt = excluded.auto_print_receipt,
			auto_print_bill = excluded.auto_print_bill,
			kitchen_printer_name = excluded.kitchen_printer_name,
			bar_printer_name = excluded.bar_printer_name,
			buffet_printer_name = excluded.buffet_printer_name,
			service_printer_name = excluded.service_printer_name,
			receipt_printer_name = excluded.receipt_printer_name,
			bill_printer_name = excluded.bill_printer_name,
			tax_percent = excluded.tax_percent
	`
)

const (
	GetSetting = `SELECT value FROM settings WHERE key = ?`

	UpsertSetting = `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
)
