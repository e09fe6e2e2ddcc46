package sqlinline

const QInsertJob = `--sql 85382a11-eea8-4614-974b-d6f3c4e6bd21
insert into jobs (
    id,
    owner_id,
    kind,
    state,
    source_ref,
    result_refs,
    error_detail,
    credit_cost,
    ledger_tx_id,
    params,
    origin_country,
    created_at,
    updated_at
)
values (
    $1::uuid,
    $2::uuid,
    $3::text,
    'PENDING',
    $4::text,
    '[]'::jsonb,
    '',
    $5::bigint,
    $6::uuid,
    coalesce($7::jsonb, '{}'::jsonb),
    $8::text,
    now(),
    now()
);
`

const QSelectJob = `--sql 7805487c-ec19-4f71-8d5d-d4682a834982
select id, owner_id, kind, state, coalesce(external_id, ''), source_ref,
       result_refs, error_detail, credit_cost, coalesce(ledger_tx_id::text, ''),
       params, coalesce(origin_country, ''), created_at, updated_at
from jobs
where id = $1::uuid;
`

const QSelectJobForOwner = `--sql ac80c5b7-ce50-4308-b8ec-887520de909f
select id, owner_id, kind, state, coalesce(external_id, ''), source_ref,
       result_refs, error_detail, credit_cost, coalesce(ledger_tx_id::text, ''),
       params, coalesce(origin_country, ''), created_at, updated_at
from jobs
where id = $1::uuid and owner_id = $2::uuid;
`

const QSelectJobByExternalID = `--sql ca821f68-c870-407b-aa14-7f81dce09430
select id, owner_id, kind, state, coalesce(external_id, ''), source_ref,
       result_refs, error_detail, credit_cost, coalesce(ledger_tx_id::text, ''),
       params, coalesce(origin_country, ''), created_at, updated_at
from jobs
where external_id = $1::text
order by created_at desc
limit 1;
`

const QListJobsForOwner = `--sql 3307f350-f5bd-463b-affc-09d2d174b3fc
select id, owner_id, kind, state, coalesce(external_id, ''), source_ref,
       result_refs, error_detail, credit_cost, coalesce(ledger_tx_id::text, ''),
       params, coalesce(origin_country, ''), created_at, updated_at
from jobs
where owner_id = $1::uuid
order by created_at desc
limit $2::int;
`

// Conditional write: the job leaves PENDING exactly once.
const QMarkJobRunning = `--sql 16b04347-2af1-4121-90e0-af1702e8cfda
update jobs
set state = 'RUNNING', external_id = $2::text, updated_at = now()
where id = $1::uuid and state = 'PENDING'
returning id;
`

// Conditional write: terminal states are assigned at most once. A lost race
// between poll and webhook reconciliation matches zero rows and is a no-op.
const QMarkJobTerminal = `--sql a2c6369a-a6e1-4457-95fe-2707ab4b6036
update jobs
set state = $2::text,
    result_refs = coalesce($3::jsonb, result_refs),
    error_detail = coalesce($4::text, error_detail),
    updated_at = now()
where id = $1::uuid and state in ('PENDING', 'RUNNING')
returning id;
`

const QTouchJobProgress = `--sql bc1c9465-ac0d-460f-99fb-280ffb88f104
update jobs
set params = jsonb_set(params, '{progress}', to_jsonb($2::text), true),
    updated_at = now()
where id = $1::uuid and state = 'RUNNING';
`

const QListRunningJobs = `--sql afa11e70-b07c-4c89-a5a2-ed6dd7e01db3
select id, owner_id, kind, state, coalesce(external_id, ''), source_ref,
       result_refs, error_detail, credit_cost, coalesce(ledger_tx_id::text, ''),
       params, coalesce(origin_country, ''), created_at, updated_at
from jobs
where state in ('PENDING', 'RUNNING')
order by created_at asc;
`

const QListExpiredRunningJobs = `--sql a0dc7a07-3069-457e-b15a-a84ee205518c
select id, owner_id, kind, state, coalesce(external_id, ''), source_ref,
       result_refs, error_detail, credit_cost, coalesce(ledger_tx_id::text, ''),
       params, coalesce(origin_country, ''), created_at, updated_at
from jobs
where state in ('PENDING', 'RUNNING') and created_at < now() - $1::interval
order by created_at asc;
`

const QDeleteJobForOwner = `--sql 2f25267e-8714-49e9-968e-2ec5fba72d48
delete from jobs
where id = $1::uuid and owner_id = $2::uuid
returning id;
`
